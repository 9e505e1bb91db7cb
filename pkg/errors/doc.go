// Package errors defines the typed failures shared by the n8n client,
// the template renderer, and the orchestrator.
//
// Every type implements ErrorClassifier so callers can branch on the
// stage that failed without string matching:
//
//	var verr *errors.ValidationError
//	if stderrors.As(err, &verr) {
//	    fmt.Println(verr.Field, verr.Rule)
//	}
package errors
