package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"

	"github.com/Veraticus/matflow/internal/model"
)

// ProgressFunc receives the bytes of file content sent so far.
type ProgressFunc func(sent, total int64)

// DuplicateCheck is the answer of the check-duplicate endpoint.
type DuplicateCheck struct {
	Material *model.MaterialSnapshot `json:"material,omitempty"`
	Exists   bool                    `json:"exists"`
}

type conflictBody struct {
	Detail struct {
		ExistingMaterial model.MaterialSnapshot `json:"existing_material"`
	} `json:"detail"`
}

var errUploadFinished = errors.New("upload finished")

// AnalyzeFile submits a single file to the classification endpoint. The
// caller bounds the request through ctx.
func (c *Client) AnalyzeFile(ctx context.Context, file model.File) (model.FileSuggestion, error) {
	const operation = "analyze"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := writeFilePart(mw, "files", file, nil); err != nil {
		return model.FileSuggestion{}, fmt.Errorf("build %s form: %w", operation, err)
	}
	if err := mw.Close(); err != nil {
		return model.FileSuggestion{}, fmt.Errorf("build %s form: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/materials/batch/analyze", nil), &buf)
	if err != nil {
		return model.FileSuggestion{}, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	var raw json.RawMessage
	if err := c.do(req, operation, &raw); err != nil {
		return model.FileSuggestion{}, err
	}

	suggestion, err := decodeSuggestion(raw)
	if err != nil {
		return model.FileSuggestion{}, fmt.Errorf("decode %s response: %w", operation, err)
	}
	if suggestion.Filename == "" {
		suggestion.Filename = file.Name
	}
	return suggestion, nil
}

// decodeSuggestion accepts either a single suggestion object or an array
// holding one.
func decodeSuggestion(raw json.RawMessage) (model.FileSuggestion, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []model.FileSuggestion
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return model.FileSuggestion{}, err
		}
		if len(list) == 0 {
			return model.FileSuggestion{}, fmt.Errorf("empty suggestion list")
		}
		return list[0], nil
	}

	var s model.FileSuggestion
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return model.FileSuggestion{}, err
	}
	return s, nil
}

// CheckDuplicate asks whether an active material already exists for the
// product and material type.
func (c *Client) CheckDuplicate(ctx context.Context, productName string, materialType model.MaterialType) (DuplicateCheck, error) {
	query := url.Values{}
	query.Set("product_name", productName)
	query.Set("material_type", string(materialType))

	var out DuplicateCheck
	if err := c.getJSON(ctx, "check duplicate", "/materials/check-duplicate", query, &out); err != nil {
		return DuplicateCheck{}, err
	}
	return out, nil
}

// Upload streams a multipart upload and reports file progress. It never
// times out on its own; only ctx, network errors, or the server end it.
// A 409 answer is returned as *ConflictError.
func (c *Client) Upload(ctx context.Context, payload model.UploadRequest, progress ProgressFunc) (*model.Material, error) {
	const operation = "upload"

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := writeUploadForm(mw, payload, progress)
		if err == nil {
			err = mw.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	// The form writer must be finished before returning so no progress
	// callback can fire after the attempt has ended.
	defer func() {
		_ = pr.CloseWithError(errUploadFinished)
		<-done
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/materials/upload", nil), pr)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, wrapTransportError(operation, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusConflict {
		var body conflictBody
		if decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); decodeErr != nil {
			return nil, &StatusError{Operation: operation, StatusCode: resp.StatusCode, Status: resp.Status, Body: "unreadable conflict body"}
		}
		pending := payload
		return nil, &ConflictError{Existing: body.Detail.ExistingMaterial, Payload: &pending}
	}
	if resp.StatusCode >= 300 {
		return nil, statusError(operation, resp)
	}

	var material model.Material
	if err := json.NewDecoder(resp.Body).Decode(&material); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", operation, err)
	}
	return &material, nil
}

func writeUploadForm(mw *multipart.Writer, payload model.UploadRequest, progress ProgressFunc) error {
	fields := []struct {
		name  string
		value string
	}{
		{"material_type", string(payload.MaterialType)},
		{"audience", string(payload.Audience)},
		{"universe_id", intField(payload.UniverseID)},
		{"category_id", intField(payload.CategoryID)},
		{"product_id", intField(payload.ProductID)},
		{"universe_name", payload.UniverseName},
		{"category_name", payload.CategoryName},
		{"product_name", payload.ProductName},
		{"other_type_description", payload.OtherTypeDescription},
	}
	if payload.FreshnessDate != nil {
		fields = append(fields, struct {
			name  string
			value string
		}{"freshness_date", payload.FreshnessDate.Format("2006-01-02")})
	}
	if payload.ReplaceExisting {
		fields = append(fields, struct {
			name  string
			value string
		}{"replace_existing", "true"})
	}

	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := mw.WriteField(f.name, f.value); err != nil {
			return fmt.Errorf("write field %s: %w", f.name, err)
		}
	}

	return writeFilePart(mw, "file", payload.File, progress)
}

func writeFilePart(mw *multipart.Writer, field string, file model.File, progress ProgressFunc) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, file.Name))
	header.Set("Content-Type", file.ContentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create file part: %w", err)
	}

	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", file.Name, err)
	}
	defer func() { _ = src.Close() }()

	var dst io.Writer = part
	if progress != nil {
		dst = &progressWriter{w: part, total: file.Size, report: progress}
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy %s: %w", file.Name, err)
	}
	return nil
}

type progressWriter struct {
	w      io.Writer
	report ProgressFunc
	sent   int64
	total  int64
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.sent += int64(n)
	p.report(p.sent, p.total)
	return n, err
}

func intField(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
