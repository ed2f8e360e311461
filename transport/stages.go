package transport

import (
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Stage is a pre-send transform. Stages are pure and synchronous; they run
// in order before every send, including a replay.
type Stage func(Envelope) Envelope

// RequestIDHeader correlates a request with its replay in server logs.
const RequestIDHeader = "X-Request-ID"

// RequestID sets a request id unless the caller already supplied one. The
// id is kept on a replay.
func RequestID() Stage {
	return func(env Envelope) Envelope {
		if env.header.Get(RequestIDHeader) != "" {
			return env
		}
		return env.WithHeader(RequestIDHeader, uuid.NewString())
	}
}

// Bearer attaches the current access credential from src, if one is held.
// When none is held, a header this stage attached on an earlier send is
// removed; a caller-supplied Authorization header is left alone.
func Bearer(src CredentialSource) Stage {
	return func(env Envelope) Envelope {
		if src == nil {
			return env
		}
		access, ok := src.AccessToken()
		if !ok {
			if env.credential != "" {
				return env.withoutHeader("Authorization").withCredential("")
			}
			return env
		}
		t := &oauth2.Token{AccessToken: access}
		return env.WithHeader("Authorization", t.Type()+" "+t.AccessToken).withCredential(access)
	}
}
