package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/hyeh20/protein-sequence/internal/ensemble"
	"github.com/hyeh20/protein-sequence/internal/logger"
	"github.com/hyeh20/protein-sequence/internal/model"
	"github.com/hyeh20/protein-sequence/internal/tensor"
	"github.com/hyeh20/protein-sequence/internal/version"
)

// Server exposes the geometry ensemble over REST.
type Server struct {
	ens   *ensemble.Ensemble
	log   logger.Logger
	clock func() time.Time
}

func NewServer(ens *ensemble.Ensemble, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		ens:   ens,
		log:   log,
		clock: time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/v1/models", s.handleModels)
	e.POST("/v1/predict", s.handlePredict)
}

func (s *Server) handleHealth(c *echo.Context) error {
	members := 0
	if s.ens != nil {
		members = s.ens.Size()
	}
	return writeJSON(c, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: version.String(),
		Members: members,
	})
}

func (s *Server) handleModels(c *echo.Context) error {
	resp := ModelsResponse{Object: "list"}
	if s.ens != nil {
		for _, m := range s.ens.Members() {
			resp.Data = append(resp.Data, ModelInfo{ID: m.ID, Object: "model"})
		}
	}
	return writeJSON(c, http.StatusOK, resp)
}

func (s *Server) handlePredict(c *echo.Context) error {
	if s.ens == nil || s.ens.Size() == 0 {
		return writeError(c, http.StatusInternalServerError, "server_error", "no ensemble members loaded", "", "")
	}
	req, err := decodeJSON[PredictRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	x, err := featureTensor(&req)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	members, err := s.selectMembers(req.Models)
	if err != nil {
		return writeNotFound(c, err.Error())
	}

	started := s.clock()
	results := make([]MemberPrediction, 0, len(members))
	for _, m := range members {
		pred, err := m.Net.Forward(x)
		if err != nil {
			return writeError(c, http.StatusInternalServerError, "server_error",
				fmt.Sprintf("member %s: %v", m.ID, err), "", "")
		}
		results = append(results, MemberPrediction{
			Model: m.ID,
			Dist:  payload(pred.Dist),
			Theta: payload(pred.Theta),
			Phi:   payload(pred.Phi),
			Omega: payload(pred.Omega),
		})
	}
	s.log.Info("prediction served",
		"length", req.Length, "members", len(members), "elapsed", s.clock().Sub(started))

	return writeJSON(c, http.StatusOK, PredictResponse{
		ID:      "pred_" + uuid.NewString(),
		Object:  "prediction",
		Created: started.Unix(),
		Length:  req.Length,
		Results: results,
	})
}

func (s *Server) selectMembers(ids []string) ([]ensemble.Member, error) {
	all := s.ens.Members()
	if len(ids) == 0 {
		return all, nil
	}
	byID := make(map[string]ensemble.Member, len(all))
	for _, m := range all {
		byID[m.ID] = m
	}
	out := make([]ensemble.Member, 0, len(ids))
	for _, id := range ids {
		m, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("model %q is not loaded", id)
		}
		out = append(out, m)
	}
	return out, nil
}

func featureTensor(req *PredictRequest) (*tensor.Tensor, error) {
	if req.Length <= 0 {
		return nil, newInvalidRequest("length must be positive")
	}
	want := model.InputChannels * req.Length * req.Length
	if len(req.Features) != want {
		return nil, newInvalidRequest(fmt.Sprintf(
			"features: expected %d values for length %d, got %d", want, req.Length, len(req.Features)))
	}
	return tensor.NewFromData(1, model.InputChannels, req.Length, req.Length, req.Features), nil
}

func payload(t *tensor.Tensor) TensorPayload {
	if t == nil {
		return TensorPayload{}
	}
	return TensorPayload{Shape: t.Shape(), Data: t.Data}
}
