package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/auth"
	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/domain"
	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/service"
	"github.com/ZidnyIlman-its/pertamina-ep-subang-field/internal/storage"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success  bool              `json:"success"`
	Message  string            `json:"message,omitempty"`
	Data     interface{}       `json:"data,omitempty"`
	Error    string            `json:"error,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
	Instance string            `json:"instance,omitempty"`
	Meta     *MetaData         `json:"meta,omitempty"`
}

// MetaData represents pagination metadata
type MetaData struct {
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// reportView is a report plus resolvable photo locations
type reportView struct {
	*domain.Report
	PhotoURLs []string `json:"photoUrls"`
}

// setupRoutes configures all HTTP routes
func setupRoutes(app *App) {
	app.Router.HandleFunc("/health", app.healthHandler).Methods("GET")
	app.Router.HandleFunc("/auth/login", app.loginHandler).Methods("POST")

	app.Router.HandleFunc("/navigation/{page}", app.authMiddleware(app.navigationHandler)).Methods("GET")

	app.Router.HandleFunc("/reports", app.authMiddleware(app.createReportHandler)).Methods("POST")
	app.Router.HandleFunc("/reports", app.authMiddleware(app.listReportsHandler)).Methods("GET")
	app.Router.HandleFunc("/reports/{id}", app.authMiddleware(app.getReportHandler)).Methods("GET")
	app.Router.HandleFunc("/reports/{id}", app.authMiddleware(app.updateReportHandler)).Methods("PUT")
	app.Router.HandleFunc("/reports/{id}/photos", app.authMiddleware(app.uploadPhotosHandler)).Methods("POST")
	app.Router.HandleFunc("/photos/{key:.+}", app.authMiddleware(app.photoHandler)).Methods("GET")

	app.Router.HandleFunc("/statistics", app.authMiddleware(app.statisticsHandler)).Methods("GET")
	app.Router.HandleFunc("/users", app.authMiddleware(app.usersHandler)).Methods("GET")
	app.Router.HandleFunc("/settings", app.authMiddleware(app.settingsHandler)).Methods("GET")
}

// authMiddleware validates JWT token
func (app *App) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := auth.ExtractTokenFromHeader(r)
		if token == "" {
			respondWithError(w, http.StatusUnauthorized, "Missing authorization token")
			return
		}

		claims, err := app.Tokens.ValidateToken(token)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		next(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
	}
}

func actorFrom(r *http.Request) service.Actor {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return service.Actor{}
	}
	return service.Actor{UserID: claims.Sub, Role: claims.Role}
}

func (app *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":   "healthy",
		"service":  "report-service",
		"instance": app.InstanceID,
	})
}

// loginHandler authenticates users and returns JWT
func (app *App) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	user, err := app.Directory.Authenticate(req.Email, req.Password)
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "Email atau password salah")
		return
	}

	token, err := app.Tokens.GenerateToken(*user)
	if err != nil {
		logrus.WithError(err).Error("[AUTH] failed to sign token")
		respondWithError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	logrus.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("[AUTH] login")
	respondWithJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"token": token,
			"user":  user,
		},
	})
}

// navigationHandler resolves a requested page against the caller's role.
// Pages the role may not open fall back to the dashboard without an error.
func (app *App) navigationHandler(w http.ResponseWriter, r *http.Request) {
	requested := mux.Vars(r)["page"]
	page := auth.ResolvePage(actorFrom(r).Role, requested)

	respondWithJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"requested":  requested,
			"page":       page,
			"redirected": page != requested,
		},
	})
}

func (app *App) createReportHandler(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeForm(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	report, err := app.Reports.Create(r.Context(), actorFrom(r), raw)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, APIResponse{
		Success:  true,
		Message:  "Laporan berhasil dibuat",
		Data:     app.view(report),
		Instance: app.InstanceID,
	})
}

func (app *App) listReportsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.ListFilter{
		Category: domain.Category(query.Get("category")),
		Status:   domain.Status(query.Get("status")),
		Page:     parseIntParam(query.Get("page"), 1),
		PerPage:  parseIntParam(query.Get("per_page"), domain.DefaultPerPage),
	}

	reports, total, err := app.Reports.List(r.Context(), actorFrom(r), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	views := make([]reportView, 0, len(reports))
	for i := range reports {
		views = append(views, app.view(&reports[i]))
	}

	filter = filter.Normalize()
	respondWithJSON(w, http.StatusOK, APIResponse{
		Success:  true,
		Data:     views,
		Instance: app.InstanceID,
		Meta: &MetaData{
			Total:   total,
			Page:    filter.Page,
			PerPage: filter.PerPage,
		},
	})
}

func (app *App) getReportHandler(w http.ResponseWriter, r *http.Request) {
	report, err := app.Reports.Get(r.Context(), actorFrom(r), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, APIResponse{
		Success:  true,
		Data:     app.view(report),
		Instance: app.InstanceID,
	})
}

func (app *App) updateReportHandler(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeForm(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	report, err := app.Reports.Update(r.Context(), actorFrom(r), mux.Vars(r)["id"], raw)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, APIResponse{
		Success:  true,
		Message:  "Laporan berhasil diperbarui",
		Data:     app.view(report),
		Instance: app.InstanceID,
	})
}

// uploadPhotosHandler accepts multipart "photos" files for one report
func (app *App) uploadPhotosHandler(w http.ResponseWriter, r *http.Request) {
	policy := app.Reports.PhotoPolicy()
	r.Body = http.MaxBytesReader(w, r.Body, int64(policy.MaxCount)*policy.MaxBytes+1<<20)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid multipart form: "+policy.Hint())
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["photos"]
	uploads := make([]service.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read %s", fh.Filename))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read %s", fh.Filename))
			return
		}
		uploads = append(uploads, service.Upload{Name: fh.Filename, Data: data})
	}

	report, err := app.Reports.AttachPhotos(r.Context(), actorFrom(r), mux.Vars(r)["id"], uploads)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, APIResponse{
		Success:  true,
		Message:  fmt.Sprintf("%d foto berhasil diunggah", len(uploads)),
		Data:     app.view(report),
		Instance: app.InstanceID,
	})
}

// photoHandler streams a stored photo back to the client
func (app *App) photoHandler(w http.ResponseWriter, r *http.Request) {
	if err := auth.Authorize(actorFrom(r).Role, auth.CapReportsView); err != nil {
		writeServiceError(w, err)
		return
	}

	rc, contentType, err := app.Photos.Open(r.Context(), mux.Vars(r)["key"])
	if errors.Is(err, storage.ErrNotFound) {
		respondWithError(w, http.StatusNotFound, "Photo not found")
		return
	}
	if err != nil {
		logrus.WithError(err).Error("[PHOTO] failed to open photo")
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch photo")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		logrus.WithError(err).Warn("[PHOTO] failed to stream photo")
	}
}

func (app *App) statisticsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := app.Reports.Statistics(r.Context(), actorFrom(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if stats == nil {
		stats = []domain.CategoryStatistics{}
	}

	respondWithJSON(w, http.StatusOK, APIResponse{
		Success:  true,
		Data:     stats,
		Instance: app.InstanceID,
	})
}

func (app *App) usersHandler(w http.ResponseWriter, r *http.Request) {
	if err := auth.Authorize(actorFrom(r).Role, auth.CapUserManagement); err != nil {
		writeServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    app.Directory.Users(),
	})
}

func (app *App) settingsHandler(w http.ResponseWriter, r *http.Request) {
	if err := auth.Authorize(actorFrom(r).Role, auth.CapSettings); err != nil {
		writeServiceError(w, err)
		return
	}

	policy := app.Reports.PhotoPolicy()
	respondWithJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"photos":    policy,
			"photoHint": policy.Hint(),
		},
	})
}

func (app *App) view(r *domain.Report) reportView {
	urls := make([]string, 0, len(r.Photos))
	for _, key := range r.Photos {
		urls = append(urls, app.Photos.URL(key))
	}
	return reportView{Report: r, PhotoURLs: urls}
}

// decodeForm reads a JSON object body, keeping numbers as json.Number so the
// validator sees exactly what the client sent.
func decodeForm(r *http.Request) (map[string]any, error) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// writeServiceError maps domain error kinds to HTTP statuses
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	var aerr *domain.AuthorizationError
	var nferr *domain.NotFoundError
	var cerr *domain.ConflictError

	switch {
	case errors.As(err, &verr):
		respondWithJSON(w, http.StatusBadRequest, APIResponse{
			Success: false,
			Error:   "Validasi gagal",
			Fields:  verr.Fields,
		})
	case errors.As(err, &aerr):
		respondWithError(w, http.StatusForbidden, "Akses ditolak")
	case errors.As(err, &nferr):
		respondWithError(w, http.StatusNotFound, "Laporan tidak ditemukan")
	case errors.As(err, &cerr):
		respondWithError(w, http.StatusConflict, "Laporan telah diubah oleh pengguna lain, muat ulang dan coba lagi")
	default:
		logrus.WithError(err).Error("[REPORT] request failed")
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).Error("failed to encode response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, APIResponse{
		Success: false,
		Error:   message,
	})
}

func parseIntParam(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(value, "%d", &result); err != nil || result < 1 {
		return defaultValue
	}
	return result
}
