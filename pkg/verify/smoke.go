package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/modelship/modelship/pkg/engine"
)

// Risk levels the model reports per prediction.
var validRiskLevels = map[string]bool{
	"CRITICAL": true,
	"HIGH":     true,
	"MEDIUM":   true,
	"LOW":      true,
}

// SmokeClaim returns the synthetic insurance claim used as the smoke test
// payload: a routine single-vehicle claim that any healthy model scores
// without error.
func SmokeClaim() map[string]interface{} {
	return map[string]interface{}{
		"months_as_customer":          5,
		"age":                         35,
		"policy_deductable":           500,
		"umbrella_limit":              0,
		"insured_sex":                 1,
		"insured_education_level":     2,
		"insured_occupation":          3,
		"insured_hobbies":             0,
		"insured_relationship":        0,
		"incident_type":               1,
		"collision_type":              1,
		"incident_severity":           2,
		"authorities_contacted":       0,
		"number_of_vehicles_involved": 1,
		"property_damage":             0,
		"bodily_injuries":             0,
		"witnesses":                   1,
		"police_report_available":     1,
		"total_claim_amount":          10000,
		"injury_claim":                1000,
		"property_claim":              2000,
		"vehicle_claim":               3000,
		"auto_make":                   1,
		"auto_year":                   2018,
		"incident_hour_bin":           3,
		"claim_ratio":                 0.33,
	}
}

// predictionResponse is the shape of the model's prediction output.
type predictionResponse struct {
	FraudProbability    []float64 `json:"fraud_probability"`
	DetailedPredictions []struct {
		FraudProbability float64 `json:"fraud_probability"`
		RiskLevel        string  `json:"risk_level"`
	} `json:"detailed_predictions"`
}

// checkSmoke sends the synthetic claim and validates the response shape.
// Recorded in the report; never fatal.
func (v *Verifier) checkSmoke(ctx context.Context) engine.CheckResult {
	start := time.Now()

	resp, err := v.predict(ctx, SmokeClaim())
	if err != nil {
		return engine.CheckResult{
			Name:     "smoke_test",
			Outcome:  engine.CheckFail,
			Detail:   err.Error(),
			Duration: time.Since(start),
		}
	}

	if len(resp.FraudProbability) == 0 {
		return engine.CheckResult{
			Name:     "smoke_test",
			Outcome:  engine.CheckFail,
			Detail:   "response contains no predictions",
			Duration: time.Since(start),
		}
	}

	prob := resp.FraudProbability[0]
	if prob < 0 || prob > 1 {
		return engine.CheckResult{
			Name:     "smoke_test",
			Outcome:  engine.CheckFail,
			Detail:   fmt.Sprintf("fraud probability %f out of range", prob),
			Duration: time.Since(start),
		}
	}

	detail := fmt.Sprintf("fraud probability %.4f", prob)
	if len(resp.DetailedPredictions) > 0 {
		level := resp.DetailedPredictions[0].RiskLevel
		if !validRiskLevels[level] {
			return engine.CheckResult{
				Name:     "smoke_test",
				Outcome:  engine.CheckFail,
				Detail:   fmt.Sprintf("unknown risk level %q", level),
				Duration: time.Since(start),
			}
		}
		detail = fmt.Sprintf("%s, risk level %s", detail, level)
	}

	return engine.CheckResult{
		Name:     "smoke_test",
		Outcome:  engine.CheckPass,
		Detail:   detail,
		Duration: time.Since(start),
	}
}

// predict sends one prediction request.
func (v *Verifier) predict(ctx context.Context, claim map[string]interface{}) (*predictionResponse, error) {
	body, err := json.Marshal(claim)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/invocations", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("prediction returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var decoded predictionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("malformed prediction response: %w", err)
	}
	return &decoded, nil
}
