package domain

// Status is the tag of an evaluation Outcome.
type Status string

const (
	// StatusAccepted means every check passed; Commits holds the collected history.
	StatusAccepted Status = "accepted"
	// StatusRejected means a check failed; Reason says which.
	StatusRejected Status = "rejected"
	// StatusFailed means the evaluation could not complete; Err holds the cause.
	StatusFailed Status = "failed"
)

// Outcome is the result of evaluating a single repository.
type Outcome struct {
	Repository RepositoryID
	Status     Status
	Reason     string
	Err        error
	Commits    []CommitRecord
}

// Accepted builds an accepted outcome.
func Accepted(repo RepositoryID, commits []CommitRecord) Outcome {
	if commits == nil {
		commits = []CommitRecord{}
	}
	return Outcome{Repository: repo, Status: StatusAccepted, Commits: commits}
}

// Rejected builds a rejected outcome with a human-readable reason.
func Rejected(repo RepositoryID, reason string) Outcome {
	return Outcome{Repository: repo, Status: StatusRejected, Reason: reason}
}

// Failed builds a failed outcome carrying its cause.
func Failed(repo RepositoryID, err error) Outcome {
	return Outcome{Repository: repo, Status: StatusFailed, Reason: err.Error(), Err: err}
}

// EvaluationResult holds one outcome per repository, in input order.
type EvaluationResult []Outcome

// Accepted returns the number of accepted repositories.
func (r EvaluationResult) Accepted() int {
	n := 0
	for _, o := range r {
		if o.Status == StatusAccepted {
			n++
		}
	}
	return n
}
