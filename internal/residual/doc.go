// Package residual measures how well a correction model removes bias and
// scale error from fixed-orientation accelerometer calibration recordings.
//
// A recording session holds the sensor in a sequence of known orientations,
// each for a fixed number of consecutive samples (a block). The package
// reconstructs those blocks from a flat time series, keeps only the settled
// part of each block (the steady window), subtracts the reference vector of
// the orientation and summarises the residuals for the raw and the corrected
// streams.
//
// The package is pure: it performs no logging and writes no files. Data
// quality problems that do not stop the analysis are returned as Diagnostics
// alongside the result; structural problems are returned as typed errors
// (FormatError, InsufficientDataError, ConfigurationError, EmptyInputError).
package residual
