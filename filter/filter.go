package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mailtools/mail-to-table/model"
)

// Options captures the filtering configuration. Include and exclude pattern
// sets are mutually exclusive.
type Options struct {
	IncludeSubject []string
	IncludeSender  []string
	IncludeBody    []string
	ExcludeSubject []string
	ExcludeSender  []string
	ExcludeBody    []string
}

// Filter holds compiled regex patterns for filtering records.
type Filter struct {
	includeMode    bool
	excludeMode    bool
	includeSubject []*regexp.Regexp
	includeSender  []*regexp.Regexp
	includeBody    []*regexp.Regexp
	excludeSubject []*regexp.Regexp
	excludeSender  []*regexp.Regexp
	excludeBody    []*regexp.Regexp
}

// New creates a new Filter from the provided options.
func New(opts Options) (*Filter, error) {
	includeSubject, err := compilePatterns(opts.IncludeSubject)
	if err != nil {
		return nil, fmt.Errorf("compile include-subject pattern: %w", err)
	}
	includeSender, err := compilePatterns(opts.IncludeSender)
	if err != nil {
		return nil, fmt.Errorf("compile include-sender pattern: %w", err)
	}
	includeBody, err := compilePatterns(opts.IncludeBody)
	if err != nil {
		return nil, fmt.Errorf("compile include-body pattern: %w", err)
	}
	excludeSubject, err := compilePatterns(opts.ExcludeSubject)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-subject pattern: %w", err)
	}
	excludeSender, err := compilePatterns(opts.ExcludeSender)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-sender pattern: %w", err)
	}
	excludeBody, err := compilePatterns(opts.ExcludeBody)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-body pattern: %w", err)
	}

	includeActive := len(includeSubject) > 0 || len(includeSender) > 0 || len(includeBody) > 0
	excludeActive := len(excludeSubject) > 0 || len(excludeSender) > 0 || len(excludeBody) > 0
	if includeActive && excludeActive {
		return nil, fmt.Errorf("include and exclude filters are mutually exclusive")
	}

	return &Filter{
		includeMode:    includeActive,
		excludeMode:    excludeActive,
		includeSubject: includeSubject,
		includeSender:  includeSender,
		includeBody:    includeBody,
		excludeSubject: excludeSubject,
		excludeSender:  excludeSender,
		excludeBody:    excludeBody,
	}, nil
}

// Allows returns true if the record passes the filter criteria.
func (f *Filter) Allows(rec *model.Record) bool {
	if f.includeMode {
		return f.matches(rec, f.includeSubject, f.includeSender, f.includeBody)
	}
	if f.excludeMode {
		return !f.matches(rec, f.excludeSubject, f.excludeSender, f.excludeBody)
	}
	return true
}

// matches checks the subject, sender and body dimensions. The sender
// patterns run against both the address and the display name.
func (f *Filter) matches(rec *model.Record, subject, sender, body []*regexp.Regexp) bool {
	if matchAny(subject, rec.Subject) {
		return true
	}
	if matchAny(sender, rec.SenderEmail) || matchAny(sender, rec.SenderName) {
		return true
	}
	return matchAny(body, rec.BodyText)
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// matchAny reports whether any pattern matches. Empty field values never
// match, so patterns like ".*" only select records that carry the field.
func matchAny(patterns []*regexp.Regexp, text string) bool {
	if text == "" {
		return false
	}
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
