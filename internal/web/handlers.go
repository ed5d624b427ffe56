package web

import (
	"encoding/json"
	"net/http"

	"github.com/paulmach/orb/geojson"

	"github.com/rileyhales/hydrologic-bias-correction/internal/export"
	"github.com/rileyhales/hydrologic-bias-correction/internal/model"
)

type summaryResponse struct {
	Run         *model.RunMeta `json:"run,omitempty"`
	Basins      int            `json:"basins"`
	Gauges      int            `json:"gauges"`
	Labels      int            `json:"labels"`
	Assignments int            `json:"assignments"`
	ByReason    map[string]int `json:"by_reason"`
	Propagation map[string]int `json:"propagation"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	resp := summaryResponse{
		Basins:      s.Store.BasinCount(),
		Gauges:      s.Store.GaugeCount(),
		Labels:      s.Store.LabelCount(),
		Assignments: s.Store.AssignmentCount(),
		ByReason:    s.Store.CountByReason(),
		Propagation: s.Store.PropagationCountByStage(),
	}
	if meta, ok := s.Store.ReadRunMeta(); ok {
		resp.Run = &meta
	}
	writeJSON(w, resp)
}

func (s *Server) handleAssignments(w http.ResponseWriter, r *http.Request) {
	reason := model.Reason(r.URL.Query().Get("reason"))
	if reason != "" && !reason.Valid() {
		http.Error(w, "invalid 'reason' parameter", http.StatusBadRequest)
		return
	}

	records, err := s.Store.ReadAssignments(reason)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

func (s *Server) handlePropagation(w http.ResponseWriter, r *http.Request) {
	stage := r.URL.Query().Get("stage")
	if stage == "" {
		stage = model.StageResolved
	}
	switch stage {
	case model.StageDownstream, model.StageUpstream, model.StageResolved:
	default:
		http.Error(w, "invalid 'stage' parameter", http.StatusBadRequest)
		return
	}

	cands, err := s.Store.ReadPropagation(stage)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, cands)
}

// handleGeoJSON returns assignment points grouped by reason, cluster or
// unassigned-only. With ?group= only that group is returned.
func (s *Server) handleGeoJSON(w http.ResponseWriter, r *http.Request) {
	by := r.URL.Query().Get("by")
	if by == "" {
		by = string(export.ByReason)
	}
	grouping, err := export.ParseGrouping(by)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	basins, records, err := s.readTables()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	groups := export.Collections(basins, records, grouping)
	if key := r.URL.Query().Get("group"); key != "" {
		fc, ok := groups[key]
		if !ok {
			fc = geojson.NewFeatureCollection()
		}
		writeJSON(w, fc)
		return
	}

	all := geojson.NewFeatureCollection()
	for _, fc := range groups {
		all.Features = append(all.Features, fc.Features...)
	}
	writeJSON(w, all)
}

func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	basins, records, err := s.readTables()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, export.Links(basins, records))
}

func (s *Server) readTables() ([]model.Basin, []model.AssignmentRecord, error) {
	basins, err := s.Store.ReadBasins()
	if err != nil {
		return nil, nil, err
	}
	records, err := s.Store.ReadAssignments("")
	if err != nil {
		return nil, nil, err
	}
	return basins, records, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	// Wildcard CORS: local analysis tool, not a public API.
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if v == nil {
		_, _ = w.Write([]byte("[]"))
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}
