// Package prediction defines the contract with the external candidate
// scoring model. A prediction ranks dispatch candidates from a fixed
// six-field feature vector; callers treat any failure as a signal to fall
// back to rule-based scoring.
package prediction
