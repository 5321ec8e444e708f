package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"civitai-scraper/internal/config"
	"civitai-scraper/internal/database"
	"civitai-scraper/internal/database/models"
	"civitai-scraper/internal/monitoring"
	"civitai-scraper/internal/scraper"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	topModels       = 10
)

// Catalog is the image catalog as seen by the API. SetNSFW is its only write.
type Catalog interface {
	GetImagesWithPagination(filter models.ImageFilter) ([]*models.Image, error)
	GetImagesCount(filter models.ImageFilter) (int, error)
	GetImage(id int64) (*models.Image, error)
	GetCatalogStats(topModels int) (*models.CatalogStats, error)
	GetImagesForExport(filter models.ImageFilter) ([]*models.Image, error)
	SetNSFW(filename string, nsfw bool) error
	Ping() error
}

type Server struct {
	catalog Catalog
	files   *scraper.Downloader
	monitor *monitoring.Monitor
	output  config.OutputConfig
	logger  *logrus.Logger
	port    string
}

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Count   int         `json:"count,omitempty"`
}

type ImagesResponse struct {
	Images     []*models.Image `json:"images"`
	TotalCount int             `json:"total_count"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
}

type HealthResponse struct {
	Status    string                   `json:"status"`
	Timestamp string                   `json:"timestamp"`
	Database  string                   `json:"database"`
	Scraper   *monitoring.HealthStatus `json:"scraper,omitempty"`
}

type ToggleCategoryResponse struct {
	ID          int64  `json:"id"`
	NewCategory string `json:"new_category"`
}

// NewServer builds the catalog API. monitor may be nil.
func NewServer(catalog Catalog, monitor *monitoring.Monitor, output config.OutputConfig, logger *logrus.Logger, port string) *Server {
	return &Server{
		catalog: catalog,
		files:   scraper.NewDownloader(nil, output.ImagesDir, output.NSFWImagesDir, logger),
		monitor: monitor,
		output:  output,
		logger:  logger,
		port:    port,
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Starting API server on port %s", s.port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("Shutting down API server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Handler returns the router with CORS and request logging applied.
func (s *Server) Handler() http.Handler {
	return s.loggingMiddleware(s.corsMiddleware(s.setupRoutes()))
}

func (s *Server) setupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/", s.handleRoot).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/images", s.handleImages).Methods("GET")
	api.HandleFunc("/images/{id:[0-9]+}", s.handleImage).Methods("GET")
	api.HandleFunc("/images/{id:[0-9]+}/toggle-category", s.handleToggleCategory).Methods("POST")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/export/csv", s.handleExportCSV).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Serve the downloaded files
	router.PathPrefix("/images/").Handler(http.StripPrefix("/images/", http.FileServer(http.Dir(s.output.ImagesDir))))
	router.PathPrefix("/images_nsfw/").Handler(http.StripPrefix("/images_nsfw/", http.FileServer(http.Dir(s.output.NSFWImagesDir))))

	return router
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Debug("HTTP request")
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]string{
			"message":   "Civitai Scraper API",
			"version":   "1.0.0",
			"endpoints": "/api/images, /api/images/{id}, /api/images/{id}/toggle-category, /api/stats, /api/export/csv, /api/health",
		},
	})
}

// parseFilter reads nsfw (sfw|nsfw), q and username from the query string.
func parseFilter(r *http.Request) (models.ImageFilter, error) {
	q := r.URL.Query()
	filter := models.ImageFilter{
		NSFW:     q.Get("nsfw"),
		Query:    q.Get("q"),
		Username: q.Get("username"),
	}
	switch filter.NSFW {
	case "", "sfw", "nsfw":
	default:
		return filter, fmt.Errorf("invalid nsfw filter %q (want sfw or nsfw)", filter.NSFW)
	}
	return filter, nil
}

func (s *Server) handleImages(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	filter.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if filter.Page < 1 {
		filter.Page = 1
	}
	filter.PageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if filter.PageSize < 1 || filter.PageSize > maxPageSize {
		filter.PageSize = defaultPageSize
	}

	images, err := s.catalog.GetImagesWithPagination(filter)
	if err != nil {
		s.logger.Errorf("Failed to fetch images: %v", err)
		s.writeError(w, "Failed to fetch images", http.StatusInternalServerError)
		return
	}
	if images == nil {
		images = []*models.Image{}
	}

	totalCount, err := s.catalog.GetImagesCount(filter)
	if err != nil {
		s.logger.Errorf("Failed to count images: %v", err)
		s.writeError(w, "Failed to get total count", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: ImagesResponse{
			Images:     images,
			TotalCount: totalCount,
			Page:       filter.Page,
			PageSize:   filter.PageSize,
		},
		Count: len(images),
	})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, "Invalid image id", http.StatusBadRequest)
		return
	}

	image, err := s.catalog.GetImage(id)
	if errors.Is(err, database.ErrNotFound) {
		s.writeError(w, fmt.Sprintf("Image %d not found", id), http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Errorf("Failed to fetch image %d: %v", id, err)
		s.writeError(w, "Failed to fetch image", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, APIResponse{Success: true, Data: image})
}

// handleToggleCategory flips the classification of an image and moves its file
// to the matching directory. The catalog change is reverted when the move fails.
func (s *Server) handleToggleCategory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, "Invalid image id", http.StatusBadRequest)
		return
	}

	image, err := s.catalog.GetImage(id)
	if errors.Is(err, database.ErrNotFound) {
		s.writeError(w, fmt.Sprintf("Image %d not found", id), http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Errorf("Failed to fetch image %d: %v", id, err)
		s.writeError(w, "Failed to fetch image", http.StatusInternalServerError)
		return
	}

	nsfw := !image.NSFW
	if err := s.catalog.SetNSFW(image.Filename, nsfw); err != nil {
		s.logger.Errorf("Failed to update image %d: %v", id, err)
		s.writeError(w, "Failed to update database", http.StatusInternalServerError)
		return
	}

	if err := s.files.Move(image.Filename, nsfw); err != nil {
		s.logger.Errorf("Failed to move image %d: %v", id, err)
		if err := s.catalog.SetNSFW(image.Filename, image.NSFW); err != nil {
			s.logger.Errorf("Failed to roll back image %d: %v", id, err)
		}
		s.writeError(w, "Failed to move image files", http.StatusInternalServerError)
		return
	}

	category := "sfw"
	if nsfw {
		category = "nsfw"
	}
	s.logger.WithFields(logrus.Fields{"id": id, "category": category}).Info("Image category changed")
	s.writeJSON(w, APIResponse{Success: true, Data: ToggleCategoryResponse{ID: id, NewCategory: category}})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.catalog.GetCatalogStats(topModels)
	if err != nil {
		s.logger.Errorf("Failed to fetch stats: %v", err)
		s.writeError(w, "Failed to fetch stats", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, APIResponse{Success: true, Data: stats})
}

var csvHeader = []string{
	"id", "filename", "nsfw", "username", "model", "prompt", "negative_prompt",
	"likes", "hearts", "comments", "image_created_at", "url",
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	images, err := s.catalog.GetImagesForExport(filter)
	if err != nil {
		s.logger.Errorf("Failed to fetch images for export: %v", err)
		s.writeError(w, "Failed to fetch images for export", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=civitai_images_%s.csv", time.Now().Format("2006-01-02")))

	cw := csv.NewWriter(w)
	cw.Write(csvHeader)
	for _, image := range images {
		cw.Write([]string{
			strconv.FormatInt(image.ID, 10),
			image.Filename,
			strconv.FormatBool(image.NSFW),
			image.Username,
			image.Model,
			image.Prompt,
			image.NegativePrompt,
			strconv.Itoa(image.LikeCount),
			strconv.Itoa(image.HeartCount),
			strconv.Itoa(image.CommentCount),
			image.ImageCreatedAt.Format("2006-01-02 15:04:05"),
			image.URL,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		s.logger.Errorf("Failed to write CSV export: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Check database connection
	if err := s.catalog.Ping(); err != nil {
		s.writeError(w, "Database connection failed", http.StatusServiceUnavailable)
		return
	}

	health := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Database:  "connected",
	}
	if s.monitor != nil {
		status := s.monitor.GetHealthStatus()
		health.Scraper = &status
		health.Status = status.Status
	}

	s.writeJSON(w, APIResponse{Success: true, Data: health})
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Errorf("Failed to encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}
