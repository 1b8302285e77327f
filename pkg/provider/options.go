package provider

import (
	"net/http"
)

type RequestOption = func(*http.Request)

func WithQuery(key string, value string) RequestOption {
	return func(req *http.Request) {
		q := req.URL.Query()
		q.Add(key, value)
		req.URL.RawQuery = q.Encode()
	}
}

func WithHeaders(headers http.Header) RequestOption {
	return func(req *http.Request) {
		for k, v := range headers {
			req.Header[k] = v
		}
	}
}
