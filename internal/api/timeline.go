package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/portal-treinamento/core/internal/domain"
	"github.com/portal-treinamento/core/internal/store"
	"github.com/portal-treinamento/core/internal/timeline"
)

// PreviewTimeline computes the milestones a class starting on start_date
// would get from a segment of training_days business days.
func (h *Handler) PreviewTimeline(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}
	var req previewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	start, err := timeline.ParseDate(req.StartDate)
	if err != nil {
		Error(w, http.StatusBadRequest, "start_date must be YYYY-MM-DD")
		return
	}
	if req.TrainingDays == nil || *req.TrainingDays < 0 {
		Error(w, http.StatusBadRequest, "training_days must be a non-negative integer")
		return
	}
	JSON(w, http.StatusOK, newMilestonesResponse(timeline.ComputeMilestones(start, *req.TrainingDays)))
}

// ClassTimeline returns the timeline of a stored class.
func (h *Handler) ClassTimeline(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	c, ok := h.loadClass(w, r, user)
	if !ok {
		return
	}
	seg, err := h.segmentFor(r, c)
	if err != nil {
		fail(w, r, err)
		return
	}
	now := h.now()
	JSON(w, http.StatusOK, newTimelineResponse(c, timeline.BuildTimeline(c, seg, now), now))
}

// ListClasses returns the caller's tenant classes.
func (h *Handler) ListClasses(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	classes, err := h.repo.ListClasses(r.Context(), user.TenantID)
	if err != nil {
		fail(w, r, err)
		return
	}
	now := h.now()
	out := make([]classResponse, 0, len(classes))
	for _, c := range classes {
		out = append(out, newClassResponse(c, now))
	}
	JSON(w, http.StatusOK, map[string]any{"classes": out})
}

// GetClass returns one class of the caller's tenant.
func (h *Handler) GetClass(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	c, ok := h.loadClass(w, r, user)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, newClassResponse(c, h.now()))
}

// CreateClass stores a class, filling unset milestone dates from its segment.
func (h *Handler) CreateClass(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	if !user.CanManageClasses() {
		Error(w, http.StatusForbidden, "forbidden")
		return
	}
	var req classRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := req.toDomain(user.TenantID)
	if err != nil {
		fail(w, r, err)
		return
	}

	existing, err := h.repo.GetClass(r.Context(), c.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		fail(w, r, err)
		return
	case existing.TenantID != user.TenantID:
		Error(w, http.StatusNotFound, "class not found")
		return
	default:
		c.CreatedAt = existing.CreatedAt
	}

	if c.SegmentID != "" {
		seg, err := h.repo.GetSegment(r.Context(), c.SegmentID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && seg.TenantID != user.TenantID) {
			Error(w, http.StatusBadRequest, "unknown segment_id")
			return
		}
		if err != nil {
			fail(w, r, err)
			return
		}
		timeline.ApplyMilestones(c, seg)
	}
	if err := c.Validate(); err != nil {
		fail(w, r, err)
		return
	}

	now := h.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if err := h.repo.UpsertClass(r.Context(), c); err != nil {
		fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if existing != nil {
		status = http.StatusOK
	}
	JSON(w, status, newClassResponse(c, now))
}

// GetSegment returns one segment of the caller's tenant.
func (h *Handler) GetSegment(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	seg, err := h.repo.GetSegment(r.Context(), chi.URLParam(r, "id"))
	if err == nil && seg.TenantID != user.TenantID {
		err = store.ErrNotFound
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, segmentResponse{ID: seg.ID, Name: seg.Name, TrainingDays: seg.TrainingDays})
}

// PutSegment creates or replaces a segment.
func (h *Handler) PutSegment(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	if !user.CanManageClasses() {
		Error(w, http.StatusForbidden, "forbidden")
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		Error(w, http.StatusBadRequest, "segment id is required")
		return
	}
	var req segmentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	existing, err := h.repo.GetSegment(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		fail(w, r, err)
		return
	case existing.TenantID != user.TenantID:
		Error(w, http.StatusNotFound, "segment not found")
		return
	}

	seg := &domain.Segment{ID: id, TenantID: user.TenantID, Name: strings.TrimSpace(req.Name), TrainingDays: req.TrainingDays}
	if err := seg.Validate(); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.repo.UpsertSegment(r.Context(), seg); err != nil {
		fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, segmentResponse{ID: seg.ID, Name: seg.Name, TrainingDays: seg.TrainingDays})
}

// loadClass fetches the class named by the URL, hiding other tenants' rows.
func (h *Handler) loadClass(w http.ResponseWriter, r *http.Request, user domain.User) (*domain.TrainingClass, bool) {
	c, err := h.repo.GetClass(r.Context(), chi.URLParam(r, "id"))
	if err == nil && c.TenantID != user.TenantID {
		err = store.ErrNotFound
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusNotFound, "class not found")
		} else {
			fail(w, r, err)
		}
		return nil, false
	}
	return c, true
}

// segmentFor returns the class segment, or nil when it has none or the
// segment no longer exists.
func (h *Handler) segmentFor(r *http.Request, c *domain.TrainingClass) (*domain.Segment, error) {
	if c.SegmentID == "" {
		return nil, nil
	}
	seg, err := h.repo.GetSegment(r.Context(), c.SegmentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return seg, err
}
