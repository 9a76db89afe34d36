// Package compiler turns CUE metadata field declarations into ir.FieldSpec.
//
// A declaration names a field and gives its default value:
//
//	field: group: default: "unsorted"
//	field: quality: {
//		default: 0
//		doc:     "operator rating, 0 means unrated"
//	}
//
// Defaults must be concrete IR values: string, int, bool, list or struct.
// Floats and null are rejected.
package compiler
