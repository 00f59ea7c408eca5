// Package upload pushes bound records and facts to the platform.
//
// Upload splits records into chunks, submits every chunk concurrently and
// retries each chunk under a RetryPolicy. Requests are bounded by the
// remote client's gate; backoff sleeps happen outside it. A chunk that fails
// permanently does not cancel its siblings: the first such failure is
// returned as a *types.UploadError alongside the counts of the chunks that
// succeeded.
//
// UploadLegacy is the per-record path for platforms without the bulk bounds
// endpoint. ChooseEndpoint picks between the two once per run.
package upload
