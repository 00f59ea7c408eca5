// Package validate drops bound records that the platform would reject.
package validate
