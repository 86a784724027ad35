package entity

import "time"

// ImprestHistory is one row of the append-only audit trail of an imprest
type ImprestHistory struct {
	ID             int64     `json:"id"`
	ImprestID      string    `json:"imprest_id"`
	ActorID        string    `json:"actor_id"`
	ActorRole      Role      `json:"actor_role"`
	Action         string    `json:"action"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	Comments       string    `json:"comments"`
	Timestamp      time.Time `json:"timestamp"`
}

// IdempotencyRecord binds a client-supplied key to the operation it first applied
type IdempotencyRecord struct {
	Key       string    `json:"key"`
	ImprestID string    `json:"imprest_id"`
	Operation string    `json:"operation"`
	ActorID   string    `json:"actor_id"`
	CreatedAt time.Time `json:"created_at"`
}
