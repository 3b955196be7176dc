package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classifyd/internal/pool"
	"classifyd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Predict(ctx context.Context, img pool.InputImage) (types.PredictResponse, error)
	Probe(ctx context.Context) (types.ProbeResponse, error)
	Status() types.StatusResponse
	Ready() bool
}

// NewMux builds the router.
//
//	POST /predict        classify one image (raw body or multipart field "image")
//	GET  /classifyimage  run the warm-up memory probe on the test image
//	GET  /status         pool snapshot
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Compress(5, "application/json"))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}

	r.Post("/predict", func(w http.ResponseWriter, r *http.Request) {
		lvl := requestLogLevel(r)
		start := time.Now()
		img, status, err := readImage(w, r)
		if err != nil {
			writeJSONError(w, status, err.Error())
			logEnd(r, lvl, "predict", status, start, err)
			return
		}
		logStart(r, lvl, "predict")
		ctx, cancel := requestContext(r)
		defer cancel()
		resp, err := svc.Predict(ctx, img)
		if err != nil {
			finishError(w, r, lvl, "predict", start, err)
			return
		}
		writeJSON(w, resp)
		logEnd(r, lvl, "predict", http.StatusOK, start, nil)
	})

	r.Get("/classifyimage", func(w http.ResponseWriter, r *http.Request) {
		lvl := requestLogLevel(r)
		start := time.Now()
		logStart(r, lvl, "probe")
		ctx, cancel := requestContext(r)
		defer cancel()
		resp, err := svc.Probe(ctx)
		if err != nil {
			finishError(w, r, lvl, "probe", start, err)
			return
		}
		writeJSON(w, resp)
		logEnd(r, lvl, "probe", http.StatusOK, start, nil)
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Status())
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("closed"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)

	return r
}

// requestContext joins the server base context with the request context so
// shutdown cancels in-flight work, and applies the request timeout.
func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	if requestTimeout <= 0 {
		return ctx, cancel
	}
	tctx, tcancel := context.WithTimeout(ctx, time.Duration(requestTimeout)*time.Second)
	return tctx, func() { tcancel(); cancel() }
}

func finishError(w http.ResponseWriter, r *http.Request, lvl LogLevel, op string, start time.Time, err error) {
	// Client went away or server is shutting down: nothing useful to send.
	if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
		logEnd(r, lvl, op, 499, start, err)
		return
	}
	status := statusFor(err)
	writeJSONError(w, status, err.Error())
	logEnd(r, lvl, op, status, start, err)
}

// readImage extracts the image from a raw body or a multipart "image" field.
func readImage(w http.ResponseWriter, r *http.Request) (pool.InputImage, int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	img := pool.InputImage{Label: r.URL.Query().Get("label"), Filename: r.URL.Query().Get("filename")}

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var src io.Reader = r.Body
	if strings.EqualFold(mt, "multipart/form-data") {
		f, hdr, err := r.FormFile("image")
		if err != nil {
			if isTooLarge(err) {
				return img, http.StatusRequestEntityTooLarge, errors.New("request body too large")
			}
			return img, http.StatusBadRequest, errors.New("multipart field \"image\" is required")
		}
		defer f.Close()
		src = f
		if img.Filename == "" {
			img.Filename = hdr.Filename
		}
	}
	data, err := io.ReadAll(src)
	if err != nil {
		if isTooLarge(err) {
			return img, http.StatusRequestEntityTooLarge, errors.New("request body too large")
		}
		return img, http.StatusBadRequest, errors.New("failed to read request body")
	}
	if len(data) == 0 {
		return img, http.StatusBadRequest, errors.New("image body is required")
	}
	img.Data = data
	return img, http.StatusOK, nil
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Error().Err(err).Msg("encode response")
	}
}
