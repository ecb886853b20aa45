// Package workers implements the three stage workers of the blur pipeline.
//
// Cleanup removes intermediate artifacts left in the staging directory by
// earlier runs. Blur decodes the image named by the input payload, applies one
// Gaussian blur pass, and writes a fresh artifact into staging. Save copies the
// final artifact into the output directory under a timestamped name.
//
// Workers are stateless between calls and safe to share across runs; per-run
// logging context travels on the context.Context.
package workers
