package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Envelope is an immutable snapshot of an outbound request: enough to send
// it again after a renewal. Every With* method returns a modified copy.
type Envelope struct {
	method     string
	url        url.URL
	host       string
	close      bool
	header     http.Header
	body       []byte
	hasBody    bool
	retried    bool
	credential string
}

// NewEnvelope captures req, consuming and closing its body.
func NewEnvelope(req *http.Request) (Envelope, error) {
	env := Envelope{
		method: req.Method,
		url:    *req.URL,
		host:   req.Host,
		close:  req.Close,
		header: req.Header.Clone(),
	}
	if env.header == nil {
		env.header = make(http.Header)
	}

	if req.Body != nil && req.Body != http.NoBody {
		body, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return Envelope{}, fmt.Errorf("buffering %s %s body: %w", req.Method, req.URL.Path, err)
		}
		env.body = body
		env.hasBody = true
	}
	return env, nil
}

func (e Envelope) Method() string {
	return e.method
}

func (e Envelope) URL() *url.URL {
	u := e.url
	return &u
}

// Host is the Host header the request is sent with.
func (e Envelope) Host() string {
	return e.host
}

func (e Envelope) Header() http.Header {
	return e.header.Clone()
}

func (e Envelope) Body() []byte {
	return bytes.Clone(e.body)
}

// Retried is set once the request has been replayed after a renewal.
func (e Envelope) Retried() bool {
	return e.retried
}

// Credential is the access credential the bearer stage attached, if any.
func (e Envelope) Credential() string {
	return e.credential
}

func (e Envelope) WithHeader(key, value string) Envelope {
	e.header = e.header.Clone()
	e.header.Set(key, value)
	return e
}

func (e Envelope) withoutHeader(key string) Envelope {
	e.header = e.header.Clone()
	e.header.Del(key)
	return e
}

func (e Envelope) WithRetried() Envelope {
	e.retried = true
	return e
}

func (e Envelope) withCredential(credential string) Envelope {
	e.credential = credential
	return e
}

// Request builds a fresh *http.Request for one send.
func (e Envelope) Request(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if e.hasBody {
		body = bytes.NewReader(e.body)
	}

	req, err := http.NewRequestWithContext(ctx, e.method, e.url.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header = e.header.Clone()
	req.Close = e.close
	if e.host != "" {
		req.Host = e.host
	}
	if e.hasBody {
		req.ContentLength = int64(len(e.body))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(e.body)), nil
		}
	}
	return req, nil
}
