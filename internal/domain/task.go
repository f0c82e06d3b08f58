package domain

// FeedTask is a durable scheduling unit owned by the task collection.
type FeedTask struct {
	ID   string `json:"id" bson:"_id" dynamodbav:"id"`
	Name string `json:"name" bson:"name" dynamodbav:"name"`
	URL  string `json:"url" bson:"url" dynamodbav:"url"`
	Done bool   `json:"isdone" bson:"isdone" dynamodbav:"isdone"`
}

// TaskOutcome labels how a selected task left the scheduler.
type TaskOutcome string

const (
	OutcomeStored     TaskOutcome = "stored"
	OutcomeDuplicate  TaskOutcome = "duplicate"
	OutcomeInvalid    TaskOutcome = "invalid"
	OutcomeNoArticle  TaskOutcome = "no_article"
	OutcomeStoreError TaskOutcome = "store_error"
	OutcomeSkipped    TaskOutcome = "skipped"
	OutcomeClaimed    TaskOutcome = "claimed_elsewhere"
)
