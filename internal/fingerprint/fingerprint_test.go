package fingerprint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}
	return buf.Bytes()
}

func landmarks68() [][2]float64 {
	points := make([][2]float64, 68)
	for i := range points {
		points[i] = [2]float64{float64(i), float64(i * 2)}
	}
	return points
}

func newFaceServer(t *testing.T, resp faceResponse, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			_ = json.NewEncoder(w).Encode(healthResponse{Status: "ok", Model: "buffalo_l"})
		case "/embed/face":
			if check != nil {
				check(r)
			}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestPing(t *testing.T) {
	srv := newFaceServer(t, faceResponse{}, nil)
	defer srv.Close()

	c := NewFaceClient(srv.URL+"/", time.Second)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if c.Model() != "buffalo_l" {
		t.Errorf("Model() = %q, want buffalo_l", c.Model())
	}
}

func TestPing_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewFaceClient(srv.URL, time.Second).Ping(context.Background())
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("Ping() error = %v, want ErrServiceUnavailable", err)
	}

	srv.Close()
	err = NewFaceClient(srv.URL, time.Second).Ping(context.Background())
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("Ping() on closed server error = %v, want ErrServiceUnavailable", err)
	}
}

func TestDetectFaces(t *testing.T) {
	resp := faceResponse{
		FacesCount: 1,
		Model:      "buffalo_l",
		Faces: []faceDetection{{
			BBox:      []float64{10, 20, 50, 70},
			Embedding: []float32{0.1, 0.2, 0.3},
			DetScore:  0.98,
			Landmarks: landmarks68(),
		}},
	}
	srv := newFaceServer(t, resp, func(r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parsing multipart form: %v", err)
			return
		}
		if got := r.FormValue("landmarks"); got != "true" {
			t.Errorf("landmarks field = %q, want true", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
			return
		}
		defer file.Close()
		if ct := header.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("file Content-Type = %q, want image/jpeg", ct)
		}
	})
	defer srv.Close()

	frame := image.NewRGBA(image.Rect(0, 0, 80, 60))
	faces, err := NewFaceClient(srv.URL, time.Second).DetectFaces(context.Background(), frame)
	if err != nil {
		t.Fatalf("DetectFaces() error = %v", err)
	}
	if len(faces) != 1 {
		t.Fatalf("got %d faces, want 1", len(faces))
	}
	f := faces[0]
	if len(f.Landmarks) != 68 {
		t.Errorf("got %d landmarks, want 68", len(f.Landmarks))
	}
	if f.Landmarks[3].X != 3 || f.Landmarks[3].Y != 6 {
		t.Errorf("landmark 3 = %+v, want {3 6}", f.Landmarks[3])
	}
	if len(f.Embedding) != 3 || f.DetScore != 0.98 {
		t.Errorf("unexpected face %+v", f)
	}
}

func TestDetectFaces_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewFaceClient(srv.URL, time.Second).DetectFacesInImage(context.Background(), testJPEG(t, 8, 8))
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestEncodeReference_PicksLargestFace(t *testing.T) {
	resp := faceResponse{
		FacesCount: 3,
		Faces: []faceDetection{
			{BBox: []float64{0, 0, 10, 10}, Embedding: []float32{1}},
			{BBox: []float64{0, 0, 40, 40}, Embedding: []float32{2}},
			{BBox: []float64{0, 0, 90, 90}},
		},
	}
	srv := newFaceServer(t, resp, nil)
	defer srv.Close()

	emb, err := NewFaceClient(srv.URL, time.Second).EncodeReference(context.Background(), testJPEG(t, 32, 32))
	if err != nil {
		t.Fatalf("EncodeReference() error = %v", err)
	}
	if len(emb) != 1 || emb[0] != 2 {
		t.Errorf("EncodeReference() = %v, want the largest face with an embedding", emb)
	}
}

func TestEncodeReference_NoFace(t *testing.T) {
	srv := newFaceServer(t, faceResponse{}, nil)
	defer srv.Close()

	_, err := NewFaceClient(srv.URL, time.Second).EncodeReference(context.Background(), testJPEG(t, 32, 32))
	if !errors.Is(err, ErrNoFace) {
		t.Errorf("EncodeReference() error = %v, want ErrNoFace", err)
	}
}

func TestEncodeReference_InvalidImage(t *testing.T) {
	srv := newFaceServer(t, faceResponse{}, nil)
	defer srv.Close()

	if _, err := NewFaceClient(srv.URL, time.Second).EncodeReference(context.Background(), []byte("not an image")); err == nil {
		t.Error("expected decode error")
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{"gif", []byte("GIF89a\x00\x00"), "image/gif"},
		{"bmp", []byte{0x42, 0x4D, 0, 0, 0, 0, 0, 0}, "image/bmp"},
		{"short", []byte{0xFF, 0xD8}, "application/octet-stream"},
		{"unknown", []byte("hello world"), "application/octet-stream"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := detectMIMEType(tc.data); got != tc.want {
				t.Errorf("detectMIMEType() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDownscale(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1280, 720))

	small := Downscale(img, 0.25)
	if small.Bounds().Dx() != 320 || small.Bounds().Dy() != 180 {
		t.Errorf("Downscale(0.25) size = %v, want 320x180", small.Bounds())
	}

	if Downscale(img, 1) != image.Image(img) {
		t.Error("factor 1 should return the input")
	}
	if Downscale(img, 0) != image.Image(img) {
		t.Error("factor 0 should return the input")
	}
}

func TestResizeImage(t *testing.T) {
	data := testJPEG(t, 200, 100)

	same, err := ResizeImage(data, 400)
	if err != nil {
		t.Fatalf("ResizeImage() error = %v", err)
	}
	if !bytes.Equal(same, data) {
		t.Error("image within bounds should be returned unchanged")
	}

	resized, err := ResizeImage(data, 50)
	if err != nil {
		t.Fatalf("ResizeImage() error = %v", err)
	}
	img, err := DecodeImage(resized)
	if err != nil {
		t.Fatalf("DecodeImage() error = %v", err)
	}
	if img.Bounds().Dx() != 50 || img.Bounds().Dy() != 25 {
		t.Errorf("resized size = %v, want 50x25", img.Bounds())
	}
}
