package fingerprint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/facematch"
)

const (
	defaultFaceServiceURL = "http://localhost:8000"
	defaultTimeout        = 10 * time.Second

	// reference photos larger than this are downsized before upload
	maxReferenceSize = 1600
)

var (
	// ErrServiceUnavailable is returned when the face service does not answer its health check.
	ErrServiceUnavailable = errors.New("face service unavailable")

	// ErrNoFace is returned when a reference image contains no usable face.
	ErrNoFace = errors.New("no face found in image")
)

// FaceClient detects faces and computes their embeddings using the face service
type FaceClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewFaceClient creates a new face service client
func NewFaceClient(baseURL string, timeout time.Duration) *FaceClient {
	if baseURL == "" {
		baseURL = defaultFaceServiceURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &FaceClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Ping checks that the face service is up
func (c *FaceClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrServiceUnavailable, resp.StatusCode)
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err == nil && health.Model != "" {
		c.model = health.Model
	}
	return nil
}

// Model returns the model name reported by the service, empty until known
func (c *FaceClient) Model() string {
	return c.model
}

// DetectFaces encodes the frame as JPEG and returns every face found in it.
// Coordinates are in pixels of img.
func (c *FaceClient) DetectFaces(ctx context.Context, img image.Image) ([]facematch.Face, error) {
	var buf bytes.Buffer
	if err := jpegEncode(&buf, img); err != nil {
		return nil, err
	}
	return c.DetectFacesInImage(ctx, buf.Bytes())
}

// DetectFacesInImage returns every face found in encoded image data
func (c *FaceClient) DetectFacesInImage(ctx context.Context, imageData []byte) ([]facematch.Face, error) {
	resp, err := c.embedFaces(ctx, imageData)
	if err != nil {
		return nil, err
	}

	faces := make([]facematch.Face, 0, len(resp.Faces))
	for _, d := range resp.Faces {
		faces = append(faces, d.toFace())
	}
	return faces, nil
}

// EncodeReference returns the embedding of the most prominent face of a
// reference photo. Photos without a face yield ErrNoFace.
func (c *FaceClient) EncodeReference(ctx context.Context, imageData []byte) ([]float32, error) {
	data, err := ResizeImage(imageData, maxReferenceSize)
	if err != nil {
		return nil, err
	}

	resp, err := c.embedFaces(ctx, data)
	if err != nil {
		return nil, err
	}

	var best *faceDetection
	for i := range resp.Faces {
		d := &resp.Faces[i]
		if len(d.Embedding) == 0 {
			continue
		}
		if best == nil || d.area() > best.area() {
			best = d
		}
	}
	if best == nil {
		return nil, ErrNoFace
	}
	return best.Embedding, nil
}

func (c *FaceClient) embedFaces(ctx context.Context, imageData []byte) (*faceResponse, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData, map[string]string{"landmarks": "true"})
	if err != nil {
		return nil, err
	}

	var faceResp faceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if faceResp.Model != "" {
		c.model = faceResp.Model
	}
	return &faceResp, nil
}

// postMultipartImage constructs a multipart form with the image data and extra
// fields and posts it to the given endpoint. The file part carries a
// Content-Type based on magic byte detection.
func (c *FaceClient) postMultipartImage(ctx context.Context, endpoint string, imageData []byte, fields map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	// BMP: 42 4D
	if data[0] == 0x42 && data[1] == 0x4D {
		return "image/bmp"
	}
	return "application/octet-stream"
}
