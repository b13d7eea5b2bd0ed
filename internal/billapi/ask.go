package billapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/billix-app/billix/internal/auth"
	"github.com/billix-app/billix/internal/errs"
)

// Message is one turn of the chat history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AskRequest is the body of the ask endpoint.
type AskRequest struct {
	Question            string          `json:"question"`
	BillContext         json.RawMessage `json:"billContext,omitempty"`
	ConversationHistory []Message       `json:"conversationHistory"`
}

// AskResponse is the assistant's answer.
type AskResponse struct {
	Answer string `json:"answer"`
}

// Ask sends a question about a bill. A session is required; a 429 answer
// returns *errs.RetryAfterError with the wait the server asked for.
func (c *Client) Ask(ctx context.Context, in AskRequest) (AskResponse, error) {
	s, ok := auth.SessionFromCtx(ctx)
	if !ok || s.AccessToken == "" || s.Expired(c.now()) {
		return AskResponse{}, errs.ErrNotAuthenticated
	}
	if strings.TrimSpace(in.Question) == "" {
		return AskResponse{}, fmt.Errorf("%w: empty question", errs.ErrValidation)
	}
	if in.ConversationHistory == nil {
		in.ConversationHistory = []Message{}
	}

	req, err := newJSONRequest(ctx, c.base+"/api/v1/bills/ask", in)
	if err != nil {
		return AskResponse{}, err
	}
	bearer(req, s)

	code, hdr, body, err := c.do(req)
	if err != nil {
		return AskResponse{}, err
	}
	switch code {
	case http.StatusOK:
		var out AskResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return AskResponse{}, fmt.Errorf("%w: malformed answer", errs.ErrServer)
		}
		return out, nil
	case http.StatusTooManyRequests:
		return AskResponse{}, &errs.RetryAfterError{Wait: retryAfter(hdr.Get("Retry-After"), c.now())}
	default:
		return AskResponse{}, statusError(code, body)
	}
}

// retryAfter parses a Retry-After value given in seconds or as an HTTP date.
func retryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return defaultRetryAfter
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 {
			return 0
		}
		return time.Duration(n) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d.Round(time.Second)
		}
		return 0
	}
	return defaultRetryAfter
}
