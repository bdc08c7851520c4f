package twitter

import (
	"fmt"
	"strings"
)

// User is the subset of a profile this system cares about.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// RequestError reports an API-level failure: an error payload in the
// response, a non-2xx status, or an exhausted rate-limit retry budget.
type RequestError struct {
	Op     string
	Status int
	Detail string
	Err    error
}

func (e *RequestError) Error() string {
	var b strings.Builder
	b.WriteString("twitter: ")
	b.WriteString(e.Op)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RequestError) Unwrap() error { return e.Err }

type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

type userResponse struct {
	Data   User       `json:"data"`
	Errors []apiError `json:"errors"`
}

type usersResponse struct {
	Data   []User     `json:"data"`
	Errors []apiError `json:"errors"`
}

type followingPage struct {
	Data   []User     `json:"data"`
	Meta   pageMeta   `json:"meta"`
	Errors []apiError `json:"errors"`
}

type pageMeta struct {
	ResultCount int    `json:"result_count"`
	NextToken   string `json:"next_token"`
}

func firstErrorDetail(errs []apiError) string {
	if len(errs) == 0 {
		return ""
	}
	e := errs[0]
	if e.Detail != "" {
		return e.Detail
	}
	return e.Title
}
