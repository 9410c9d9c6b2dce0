package moodle

import "errors"

var (
	// ErrLoginFailed means the login form was served again after posting
	// credentials.
	ErrLoginFailed = errors.New("login failed, check your credentials")
	// ErrQuizClosed means the quiz view page announces the quiz is closed.
	ErrQuizClosed = errors.New("quiz is closed")
	// ErrQuizInaccessible means neither a review link, a start form nor
	// inline questions were found.
	ErrQuizInaccessible = errors.New("quiz attempt is not accessible")
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
	// ErrNoFinalURL means no downloadable target was found behind an
	// activity link.
	ErrNoFinalURL = errors.New("no final file URL found")
)
