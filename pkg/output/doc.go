// Package output formats command results as text, JSON or YAML.
//
// Commands register the --output flag with AddFormatFlag and hand their
// result to a Formatter. Results that implement Texter control their own
// text rendering; anything else is printed with %v.
package output
