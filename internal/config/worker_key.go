package config

type WorkerKeyStruct struct {
	GradeSubmissionsQueue  string
	PersistViolationsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	GradeSubmissionsQueue:  "grade_submissions_queue",
	PersistViolationsQueue: "persist_violations_queue",
}
