package api

// TensorPayload carries one tensor over the wire as a flat row-major array
// plus its shape.
type TensorPayload struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// PredictRequest asks for geometry predictions over one feature map. Features
// are flattened [1, 526, length, length] row-major. Models optionally selects
// a subset of the loaded ensemble; empty means all members.
type PredictRequest struct {
	Models   []string  `json:"models,omitempty"`
	Length   int       `json:"length"`
	Features []float64 `json:"features"`
}

// MemberPrediction is one ensemble member's output distributions.
type MemberPrediction struct {
	Model string        `json:"model"`
	Dist  TensorPayload `json:"dist"`
	Theta TensorPayload `json:"theta"`
	Phi   TensorPayload `json:"phi"`
	Omega TensorPayload `json:"omega"`
}

// PredictResponse returns one prediction per requested member, in member
// order. Members are never aggregated server-side.
type PredictResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Length  int                `json:"length"`
	Results []MemberPrediction `json:"results"`
}

// ModelInfo describes one loaded ensemble member.
type ModelInfo struct {
	ID     string `json:"id"`
	Object string `json:"object"`
}

// ModelsResponse lists the loaded ensemble members.
type ModelsResponse struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

// HealthResponse reports server liveness.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Members int    `json:"members"`
}

// ResponseError is the error body returned for failed requests.
type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}
