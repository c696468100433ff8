// Package similarity ranks previously accepted manifestations (exemplars)
// against the facts of a new case.
package similarity

import "time"

// Case holds the facts of a case that similarity is computed over.
type Case struct {
	DocumentType string `json:"documentType" bson:"document_type"`
	// PrimaryValue is the computed total, or the principal when no total was computed.
	PrimaryValue float64 `json:"primaryValue" bson:"primary_value"`
	// Classification is the credit type, appeal type or nature of the action.
	Classification string `json:"classification" bson:"classification"`
	// Divergent is true when the presented total did not match the computed one.
	Divergent  bool `json:"divergent" bson:"divergent"`
	PartyCount int  `json:"partyCount" bson:"party_count"`
	// IssueCount is the number of legal questions raised.
	IssueCount int `json:"issueCount" bson:"issue_count"`
}

// Exemplar is a previously accepted output document.
type Exemplar struct {
	ID        string    `json:"id" bson:"_id"`
	AgentID   string    `json:"agentId" bson:"agent_id"`
	FileName  string    `json:"fileName" bson:"file_name"`
	Text      string    `json:"text" bson:"text"`
	Facts     Case      `json:"facts" bson:"facts"`
	Processed bool      `json:"processed" bson:"processed"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}

// Candidate is an exemplar ranked against a case.
type Candidate struct {
	ExemplarID   string   `json:"exemplarId"`
	FileName     string   `json:"fileName,omitempty"`
	ExemplarText string   `json:"exemplarText"`
	Similarity   float64  `json:"similarity"`
	MatchReasons []string `json:"matchReasons"`
}
