// Package domain holds small normalization helpers for back-office records:
// image URLs, permission flags and quotation numbers.
package domain
