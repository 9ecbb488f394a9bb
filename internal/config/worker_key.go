package config

type WorkerKeyStruct struct {
	PersistReviewsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistReviewsQueue: "persist_reviews_queue",
}
