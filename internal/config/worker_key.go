package config

type WorkerKeyStruct struct {
	PersistDefocusQueue  string
	PersistAnswersQueue  string
	FinalizeAttemptQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistDefocusQueue:  "persist_defocus_queue",
	PersistAnswersQueue:  "persist_answers_queue",
	FinalizeAttemptQueue: "finalize_attempt_queue",
}
