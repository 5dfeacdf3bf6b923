package validate

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	reID   = regexp.MustCompile(`^[0-9]{1,10}$`)
	reGTIN = regexp.MustCompile(`^[0-9]+$`)
)

// ID validates a numeric catalog identifier (product/category ids).
func ID(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if !reID.MatchString(s) {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// GTIN accepts the barcode lengths MercadoLibre recognizes:
// EAN-8, UPC-A, EAN-13 and GTIN-14. Digits only.
func GTIN(s string) bool {
	s = strings.TrimSpace(s)
	if !reGTIN.MatchString(s) {
		return false
	}
	switch len(s) {
	case 8, 12, 13, 14:
		return true
	}
	return false
}

// Price reports whether a listing price is valid (strictly positive).
func Price(p float64) bool {
	return p > 0
}

// Qty clamps a quantity to a sane listing range.
func Qty(n int) int {
	if n < 0 {
		return 0
	}
	if n > 9999 {
		return 9999
	}
	return n
}

// ImageExt reports whether the filename carries an allowed image extension.
func ImageExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif":
		return true
	}
	return false
}
