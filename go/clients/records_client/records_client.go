package records_client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/RJSeERMJ/feperjv3-sub001/go/clients"
)

// Movement is the lift a record is held on.
type Movement string

const (
	MovementSquat    Movement = "squat"
	MovementBench    Movement = "bench"
	MovementDeadlift Movement = "deadlift"
	MovementTotal    Movement = "total"
)

// CompetitionType distinguishes full-power meets from single-lift meets.
type CompetitionType string

const (
	CompetitionFullPower CompetitionType = "full_power"
	CompetitionBenchOnly CompetitionType = "bench_only"
)

// Athlete is the context a record is looked up in.
type Athlete struct {
	Sex          string  `json:"sex"`
	Division     string  `json:"division"`
	WeightClass  string  `json:"weight_class"`
	BodyweightKg float64 `json:"bodyweight_kg"`
}

// CheckRequest asks whether an attempt weight would set a record.
type CheckRequest struct {
	WeightKg        float64         `json:"weight_kg"`
	Movement        Movement        `json:"movement"`
	Athlete         Athlete         `json:"athlete"`
	CompetitionType CompetitionType `json:"competition_type"`
}

// RecordDetail describes a record the attempt would break.
type RecordDetail struct {
	Scope       string  `json:"scope"`
	Division    string  `json:"division"`
	WeightClass string  `json:"weight_class"`
	CurrentKg   float64 `json:"current_kg"`
	HolderName  string  `json:"holder_name,omitempty"`
}

// CheckResult is the answer of the records service.
type CheckResult struct {
	IsRecord bool           `json:"is_record"`
	Records  []RecordDetail `json:"records,omitempty"`
}

type RecordsClient struct {
	*clients.BaseClient
}

func NewRecordsClient(baseURL, apiKey string) *RecordsClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := &RecordsClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}

	client.SetHeader(JsonHeader, JsonContentType)
	client.SetHeader(AcceptHeader, JsonContentType)
	if apiKey != "" {
		client.SetHeader(APIKeyHeader, apiKey)
	}

	return client
}

// CheckRecordAttempt asks the records service whether weightKg breaks a record.
func (c *RecordsClient) CheckRecordAttempt(ctx context.Context, req CheckRequest) (*CheckResult, error) {
	if req.WeightKg <= 0 {
		return nil, errors.New("weight must be positive")
	}
	if req.Movement == "" {
		return nil, errors.New("movement is required")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record check: %w", err)
	}

	resp, err := c.Post(ctx, checkRecordPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to check record: %w", err)
	}

	var result CheckResult
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record check: %w", err)
	}

	return &result, nil
}
