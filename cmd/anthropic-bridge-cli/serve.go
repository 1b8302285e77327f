package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/eastwind-labs/anthropic-bridge/pkg/adapter"
	"github.com/eastwind-labs/anthropic-bridge/pkg/datatypes/anthropic"
	"github.com/eastwind-labs/anthropic-bridge/pkg/profile"
	"github.com/eastwind-labs/anthropic-bridge/pkg/provider"
	"github.com/eastwind-labs/anthropic-bridge/pkg/snapshot"
	"github.com/eastwind-labs/anthropic-bridge/pkg/snapshot/jsonl"
	"github.com/eastwind-labs/anthropic-bridge/pkg/sse"
	"github.com/eastwind-labs/anthropic-bridge/pkg/utils"
	"github.com/eastwind-labs/anthropic-bridge/pkg/utils/delimiter"
)

func newServeCommand() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start anthropic-bridge-cli http server",
		Args:  cobra.NoArgs,
		PreRun: func(*cobra.Command, []string) {
			if configFile != "" {
				viper.SetConfigFile(configFile)
			}
			if err := viper.ReadInConfig(); err != nil {
				if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
					slog.Info(fmt.Sprintf("error reading config file: %s", err.Error()))
				}
				slog.Info("using default config")
			}
			if viper.GetBool(delimiter.ViperKey("debug")) {
				slog.Info("using debug mode")
				slog.SetLogLoggerLevel(slog.LevelDebug)
				var debugBuf strings.Builder
				viper.DebugTo(&debugBuf)
				slog.Debug(">>>>>>>>>>>>>>>>> viper >>>>>>>>>>>>>>>>>" + "\n" + debugBuf.String())
				slog.Debug("<<<<<<<<<<<<<<<<< viper <<<<<<<<<<<<<<<<<")
			}
		},
		Run: serve,
	}
	flags := cmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "config file (default is $HOME/.anthropic-bridge/config.yaml)")
	flags.Bool("debug", false, "enable debug logging")
	flags.Uint16P("port", "p", 2511, "port to serve on")
	flags.String("host", "127.0.0.1", "host to serve on")
	flags.String("snapshot", "", "snapshot recorder config")
	cobra.CheckErr(viper.BindPFlag(delimiter.ViperKey("debug"), flags.Lookup("debug")))
	cobra.CheckErr(viper.BindPFlag(delimiter.ViperKey("http", "port"), flags.Lookup("port")))
	cobra.CheckErr(viper.BindPFlag(delimiter.ViperKey("http", "host"), flags.Lookup("host")))
	cobra.CheckErr(viper.BindPFlag(delimiter.ViperKey("snapshot"), flags.Lookup("snapshot")))
	viper.SetOptions(viper.WithLogger(slog.Default()))
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.anthropic-bridge/")
	viper.AddConfigPath(".")
	return cmd
}

func serve(cmd *cobra.Command, _ []string) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	recorder, err := makeSnapshotRecorder(ctx, viper.GetString(delimiter.ViperKey("snapshot")))
	if err != nil {
		cobra.CheckErr(fmt.Errorf("snapshot: %w", err))
	}
	defer recorder.Close()
	var profiles atomic.Pointer[profile.ProfileManager]
	loadProfiles := func() {
		pm, err := profile.LoadFromViper(viper.GetViper())
		if err != nil {
			slog.Warn(fmt.Sprintf("error loading profiles: %s", err.Error()))
			return
		}
		slog.Info(fmt.Sprintf("loaded %d profile(s)", len(pm.Profiles())))
		profiles.Store(pm)
	}
	loadProfiles()
	viper.OnConfigChange(func(fsnotify.Event) {
		slog.Info("config file changed, reloading")
		loadProfiles()
	})
	viper.WatchConfig()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/v1/messages", onMessages(cmd, provider.NewClient(), &profiles, recorder))
	server := &http.Server{
		Addr:     fmt.Sprintf("%s:%d", viper.GetString(delimiter.ViperKey("http", "host")), viper.GetUint16(delimiter.ViperKey("http", "port"))),
		Handler:  mux,
		ErrorLog: slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}
	slog.Info(fmt.Sprintf("starting http server, listening on %s", server.Addr))
	go server.ListenAndServe()
	<-ctx.Done()
	slog.Info("receive shutdown signal, shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error(fmt.Sprintf("error shutting down http server: %s", err.Error()))
		os.Exit(2)
	} else {
		slog.Info("http server is shutdown gracefully")
	}
}

func onMessages(
	cmd *cobra.Command,
	client *provider.Client,
	profiles *atomic.Pointer[profile.ProfileManager],
	rec snapshot.Recorder,
) func(w http.ResponseWriter, r *http.Request) {
	var (
		requestCounter atomic.Int64
		version        = cmd.Parent().Version
	)
	return func(w http.ResponseWriter, r *http.Request) {
		sn := &snapshot.Snapshot{
			RequestTime: time.Now(),
			Version:     version,
		}
		requestID := requestCounter.Add(1)
		sn.RequestID = strconv.FormatInt(requestID, 10)
		defer func() {
			go func() {
				sn.FinishTime = time.Now()
				sn.RequestHeader = snapshot.Header(r.Header)
				if err := rec.Record(sn); err != nil {
					slog.Warn(fmt.Sprintf("[%d] error recording snapshot: %s", requestID, err.Error()))
				}
			}()
		}()
		r.Header.Del(anthropic.HeaderAPIKey)
		w.Header().Set("X-Bridge-Request-Id", strconv.FormatInt(requestID, 10))
		defer func() {
			if err := recover(); err != nil {
				slog.Error(fmt.Sprintf("[%d] panic recovered: %v", requestID, err))
				slog.Debug(fmt.Sprintf(">>>>>>>>>>>>>>>>> [%d] stack >>>>>>>>>>>>>>>>>", requestID) + "\n" + string(debug.Stack()))
				slog.Debug(fmt.Sprintf("<<<<<<<<<<<<<<<<< [%d] stack <<<<<<<<<<<<<<<<<", requestID))
				respondError(w,
					http.StatusInternalServerError,
					fmt.Sprintf("An error occured while processing your request: %v", err),
				)
				sn.StatusCode = http.StatusInternalServerError
			}
		}()
		if !utils.IsContentType(r.Header, "application/json") {
			respondError(w,
				http.StatusBadRequest,
				fmt.Sprintf("Invalid Content-Type %q", r.Header.Get("Content-Type")),
			)
			sn.StatusCode = http.StatusBadRequest
			return
		}
		rawBody, err := io.ReadAll(r.Body)
		if err != nil {
			respondError(w,
				http.StatusInternalServerError,
				fmt.Sprintf("Failed to read request body: %s", err.Error()),
			)
			sn.Error = &snapshot.Error{Message: err.Error()}
			sn.StatusCode = http.StatusInternalServerError
			return
		}
		rawBody, _ = json.MarshalIndent(json.RawMessage(rawBody), "", "    ")
		slog.Debug(fmt.Sprintf(">>>>>>>>>>>>>>>>> [%d] anthropic request >>>>>>>>>>>>>>>>>", requestID) + "\n" + string(rawBody))
		slog.Debug(fmt.Sprintf("<<<<<<<<<<<<<<<<< [%d] anthropic request <<<<<<<<<<<<<<<<<", requestID))
		var req *anthropic.GenerateMessageRequest
		if err = json.Unmarshal(rawBody, &req); err != nil {
			respondError(w,
				http.StatusBadRequest,
				fmt.Sprintf("The request body is not valid JSON: %s", err.Error()),
			)
			sn.Error = &snapshot.Error{Message: err.Error()}
			sn.StatusCode = http.StatusBadRequest
			return
		}
		sn.AnthropicRequest = req
		slog.Info(fmt.Sprintf("[%d] request model: %s", requestID, req.Model))
		pm := profiles.Load()
		if pm == nil {
			respondError(w, http.StatusInternalServerError, "No profiles loaded; check the server configuration")
			sn.StatusCode = http.StatusInternalServerError
			return
		}
		prof, err := pm.Match(req.Model)
		if err != nil {
			respondError(w,
				http.StatusNotFound,
				fmt.Sprintf("No profile matched model %q: %s", req.Model, err.Error()),
			)
			sn.Error = &snapshot.Error{Message: err.Error()}
			sn.StatusCode = http.StatusNotFound
			return
		}
		sn.Profile = prof.Name
		sn.Config = &snapshot.Config{
			BaseURL: prof.GetUpstream().GetBaseURL(),
			Options: &snapshot.OptionsConfig{
				Models:           prof.GetOptions().GetModels(),
				MinMaxTokens:     prof.GetOptions().GetMinMaxTokens(),
				ImageInputTokens: prof.GetOptions().GetImageInputTokens(),
			},
		}
		slog.Info(fmt.Sprintf("[%d] using profile %q", requestID, prof.Name))
		w.Header().Set("X-Profile", prof.Name)
		ctx := profile.WithProfile(r.Context(), prof)
		// Some clients attach a "$schema" key to tool input schemas; upstream
		// function-calling endpoints reject it, so it is removed before
		// conversion.
		for _, tool := range req.Tools {
			if gjson.GetBytes(tool.InputSchema, `\$schema`).Exists() {
				newInputSchema, err := sjson.DeleteBytes(tool.InputSchema, `\$schema`)
				if err == nil {
					tool.InputSchema = newInputSchema
				} else {
					slog.Warn(fmt.Sprintf("[%d] error removing $schema from %s tool: %s", requestID, tool.Name, err.Error()))
				}
			}
		}
		upstreamRequest, estimatedInputTokens := adapter.ConvertAnthropicRequestToChatRequest(ctx, req)
		sn.UpstreamRequest = upstreamRequest
		if estimatedInputTokens > 0 {
			slog.Info(fmt.Sprintf("[%d] input tokens estimated for stripped content: %d", requestID, estimatedInputTokens))
		}
		stream, header, err := client.StreamChatCompletion(ctx, upstreamRequest,
			provider.WithHeaders(http.Header{"X-Request-Id": []string{sn.RequestID}}),
		)
		sn.ResponseHeader = snapshot.Header(header)
		if err != nil {
			slog.Error(fmt.Sprintf("[%d] error making upstream chat-completions request: %s", requestID, err.Error()))
			if providerError, isProviderError := provider.ParseError(err); isProviderError {
				respondError(w, providerError.StatusCode(), providerError.Message())
				sn.Error = &snapshot.Error{
					Message: providerError.Message(),
					Type:    providerError.Type(),
					Source:  providerError.Source(),
				}
				sn.StatusCode = providerError.StatusCode()
			} else {
				respondError(w, http.StatusInternalServerError, err.Error())
				sn.Error = &snapshot.Error{Message: err.Error()}
				sn.StatusCode = http.StatusInternalServerError
			}
			return
		}
		var (
			sw   *sse.Writer
			emit adapter.Emit
		)
		if req.Stream {
			w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			sn.StatusCode = http.StatusOK
			sw = sse.NewWriter(w)
			emit = func(event anthropic.Event) {
				if err := sw.WriteEvent(event); err != nil {
					slog.Warn(fmt.Sprintf("[%d] error writing sse frame: %s", requestID, err.Error()))
				}
			}
		}
		sa := adapter.New(req.Model, emit, adapter.WithInputTokens(estimatedInputTokens))
		if err := sa.ProcessStream(stream); err != nil {
			slog.Error(fmt.Sprintf("[%d] error transfering response stream: %s", requestID, err.Error()))
			providerError, isProviderError := provider.ParseError(err)
			if isProviderError {
				sn.Error = &snapshot.Error{
					Message: providerError.Message(),
					Type:    providerError.Type(),
					Source:  providerError.Source(),
				}
			} else {
				sn.Error = &snapshot.Error{Message: err.Error()}
			}
			if req.Stream {
				if isProviderError {
					sw.WriteError(&anthropic.StreamError{
						ErrType:    providerError.Type(),
						ErrMessage: providerError.Message(),
					})
				} else {
					sw.WriteError(&anthropic.StreamError{
						ErrType:    anthropic.APIError,
						ErrMessage: err.Error(),
					})
				}
			} else {
				if isProviderError {
					respondError(w, providerError.StatusCode(), providerError.Message())
					sn.StatusCode = providerError.StatusCode()
				} else {
					respondError(w, http.StatusInternalServerError, err.Error())
					sn.StatusCode = http.StatusInternalServerError
				}
			}
			return
		}
		dstMessage := sa.BuildNonStreamingResponse()
		sn.AnthropicResponse = dstMessage
		rawBytes, err := json.MarshalIndent(dstMessage, "", "    ")
		if err != nil {
			slog.Error(fmt.Sprintf("[%d] error marshaling non-stream response: %s", requestID, err.Error()))
			if !req.Stream {
				respondError(w, http.StatusInternalServerError, err.Error())
				sn.StatusCode = http.StatusInternalServerError
			}
			sn.Error = &snapshot.Error{Message: err.Error()}
			return
		}
		if req.Stream {
			if err := sw.WriteDone(); err != nil {
				slog.Warn(fmt.Sprintf("[%d] error writing done frame: %s", requestID, err.Error()))
			}
		} else {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			sn.StatusCode = http.StatusOK
			if _, err = w.Write(rawBytes); err != nil {
				slog.Warn(fmt.Sprintf("[%d] error sending non-stream response: %s", requestID, err.Error()))
				sn.Error = &snapshot.Error{Message: err.Error()}
			}
		}
		if dstMessage.StopReason != nil {
			slog.Info(fmt.Sprintf("[%d] stop reason: %s", requestID, *dstMessage.StopReason))
		}
		if dstMessage.Usage != nil {
			slog.Info(fmt.Sprintf("[%d] final tokens usage: input=%d, output=%d", requestID, dstMessage.Usage.InputTokens, dstMessage.Usage.OutputTokens))
		}
		slog.Debug(fmt.Sprintf(">>>>>>>>>>>>>>>>> [%d] anthropic response >>>>>>>>>>>>>>>>>", requestID) + "\n" + string(rawBytes))
		slog.Debug(fmt.Sprintf("<<<<<<<<<<<<<<<<< [%d] anthropic response <<<<<<<<<<<<<<<<<", requestID))
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	getSecsToNextMinute := func() int {
		now := time.Now()
		next := now.Add(1 * time.Minute)
		next = time.Date(next.Year(), next.Month(), next.Day(), next.Hour(), next.Minute(), 0, 0, time.Local)
		delta := next.Sub(now)
		return int(delta / time.Second)
	}
	setRetryHeaders := func(secs int) {
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		w.Header().Set("X-Retry-After", strconv.Itoa(secs))
		w.Header().Set("X-Should-Retry", "true")
	}
	var errorType string
	switch status {
	case http.StatusBadRequest:
		errorType = anthropic.InvalidRequestError
	case http.StatusUnauthorized:
		errorType = anthropic.AuthenticationError
	case http.StatusForbidden:
		errorType = anthropic.PermissionError
	case http.StatusNotFound:
		errorType = anthropic.NotFoundError
	case http.StatusRequestEntityTooLarge:
		errorType = anthropic.RequestTooLarge
	case http.StatusTooManyRequests:
		setRetryHeaders(getSecsToNextMinute())
		errorType = anthropic.RateLimitError
	case http.StatusInternalServerError:
		setRetryHeaders(1)
		errorType = anthropic.APIError
	case 529:
		setRetryHeaders(10)
		errorType = anthropic.OverloadedError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(&anthropic.Error{
		ContentType: anthropic.ErrorContentType,
		Inner: &anthropic.InnerError{
			Type:    errorType,
			Message: message,
		},
	}); err != nil {
		slog.Warn(fmt.Sprintf("[%s] error sending error response: %s", w.Header().Get("X-Bridge-Request-Id"), err.Error()))
	}
}

func makeSnapshotRecorder(ctx context.Context, cfg string) (snapshot.Recorder, error) {
	if cfg == "" {
		return snapshot.NopRecorder(), nil
	}
	u, err := url.Parse(cfg)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "jsonl":
		var path string
		if u.Opaque != "" {
			path = u.Opaque
		} else {
			path = u.Path
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		return jsonl.NewRecorder(ctx, file), nil
	default:
		return nil, fmt.Errorf("unsupported snapshot recorder type %q", u.Scheme)
	}
}
