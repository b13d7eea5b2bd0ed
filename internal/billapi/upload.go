package billapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/billix-app/billix/internal/auth"
	"github.com/billix-app/billix/internal/errs"
	"github.com/billix-app/billix/internal/filecheck"
)

// LineItem is one charge on an analyzed bill.
type LineItem struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// Analysis is the backend's reading of an uploaded bill. Raw keeps the
// original document for fields the client does not model.
type Analysis struct {
	Provider  string          `json:"provider"`
	Category  string          `json:"category"`
	AmountDue float64         `json:"amountDue"`
	DueDate   string          `json:"dueDate"`
	LineItems []LineItem      `json:"lineItems"`
	Insights  []string        `json:"insights"`
	Raw       json.RawMessage `json:"-"`
}

type uploadResponse struct {
	Success  bool      `json:"success"`
	Analysis *Analysis `json:"analysis"`
}

// Upload validates a bill file and sends it for analysis. A session is optional.
func (c *Client) Upload(ctx context.Context, name string, data []byte) (Analysis, error) {
	chk, err := filecheck.Validate(name, data)
	if err != nil {
		return Analysis{}, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(name)))
	h.Set("Content-Type", chk.MIMEType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return Analysis{}, err
	}
	if _, err := part.Write(data); err != nil {
		return Analysis{}, err
	}
	if err := mw.Close(); err != nil {
		return Analysis{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/v1/bills/upload", &buf)
	if err != nil {
		return Analysis{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if s, ok := auth.SessionFromCtx(ctx); ok {
		bearer(req, s)
	}

	code, _, body, err := c.do(req)
	if err != nil {
		return Analysis{}, err
	}
	if code != http.StatusOK {
		return Analysis{}, statusError(code, body)
	}
	return decodeAnalysis(body)
}

// decodeAnalysis tries the typed wrapper first, then extracts the nested
// analysis field leniently.
func decodeAnalysis(body []byte) (Analysis, error) {
	var w uploadResponse
	if err := json.Unmarshal(body, &w); err == nil && w.Analysis != nil {
		var raw struct {
			Analysis json.RawMessage `json:"analysis"`
		}
		_ = json.Unmarshal(body, &raw)
		w.Analysis.Raw = raw.Analysis
		return *w.Analysis, nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return Analysis{}, fmt.Errorf("%w: malformed analysis response", errs.ErrServer)
	}
	field, ok := top["analysis"]
	if !ok {
		var inner map[string]json.RawMessage
		if json.Unmarshal(top["data"], &inner) == nil {
			field, ok = inner["analysis"]
		}
	}
	if !ok {
		return Analysis{}, fmt.Errorf("%w: response has no analysis", errs.ErrServer)
	}
	var m map[string]any
	if err := json.Unmarshal(field, &m); err != nil || m == nil {
		return Analysis{}, fmt.Errorf("%w: analysis is not an object", errs.ErrServer)
	}
	a := Analysis{Raw: field}
	a.Provider, _ = m["provider"].(string)
	a.Category, _ = m["category"].(string)
	a.DueDate, _ = m["dueDate"].(string)
	a.AmountDue = number(m["amountDue"])
	if items, ok := m["lineItems"].([]any); ok {
		for _, it := range items {
			if o, ok := it.(map[string]any); ok {
				d, _ := o["description"].(string)
				a.LineItems = append(a.LineItems, LineItem{Description: d, Amount: number(o["amount"])})
			}
		}
	}
	if ins, ok := m["insights"].([]any); ok {
		for _, v := range ins {
			if s, ok := v.(string); ok {
				a.Insights = append(a.Insights, s)
			}
		}
	}
	return a, nil
}

// number accepts a JSON number or a numeric string such as "$12.50".
func number(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, err := strconv.ParseFloat(strings.TrimPrefix(strings.TrimSpace(x), "$"), 64)
		if err == nil {
			return f
		}
	}
	return 0
}
