package api

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	apperrors "github.com/wahabsharif/premierspaces-app/backend/internal/errors"
	"github.com/wahabsharif/premierspaces-app/backend/internal/models"
)

// ProgressFunc receives upload progress as a percentage in [0, 100].
type ProgressFunc func(percent int)

// UploadSegment sends one file of a batch as a multipart form.
func (c *Client) UploadSegment(ctx context.Context, seg *models.UploadSegment, userName string, progress ProgressFunc) error {
	if err := seg.Validate(); err != nil {
		return err
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fields := []struct{ name, value string }{
		{"id", seg.ID},
		{"total_segments", strconv.Itoa(seg.TotalSegments)},
		{"segment_number", strconv.Itoa(seg.SegmentNumber)},
		{"main_category", seg.MainCategory},
		{"category_level_1", seg.CategoryLevel1},
		{"property_id", seg.PropertyID},
		{"job_id", seg.JobID},
		{"file_name", seg.FileName},
		{"file_type", seg.FileType},
		{"user_name", userName},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return apperrors.Wrap(apperrors.ErrInternal, "failed to build upload form", err)
		}
	}
	part, err := w.CreateFormFile("content", seg.FileName)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to build upload form", err)
	}
	if _, err := part.Write(seg.Content); err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to build upload form", err)
	}
	if err := w.Close(); err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to build upload form", err)
	}

	payload := body.Bytes()
	u := c.endpointURL(EndpointUpload, nil)
	_, err = c.do(ctx, EndpointUpload, func(ctx context.Context) (*http.Request, error) {
		reader := &progressReader{r: bytes.NewReader(payload), total: int64(len(payload)), fn: progress}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, reader)
		if err != nil {
			return nil, err
		}
		req.ContentLength = int64(len(payload))
		req.Header.Set("Content-Type", w.FormDataContentType())
		return req, nil
	})
	if err != nil {
		return err
	}
	if progress != nil {
		progress(100)
	}
	return nil
}

// progressReader reports read progress through fn, once per whole percent.
type progressReader struct {
	r     io.Reader
	total int64
	fn    ProgressFunc

	read int64
	last int
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if p.fn == nil || p.total == 0 {
		return n, err
	}

	p.read += int64(n)
	// The final 100 is reported once the server confirms the upload.
	if pct := int(p.read * 99 / p.total); pct > p.last {
		p.last = pct
		p.fn(pct)
	}
	return n, err
}
