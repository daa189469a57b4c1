// Package dataset loads the image catalog that defines the item universe
// and separates encounters into database and query sets for evaluation
// runs.
package dataset
