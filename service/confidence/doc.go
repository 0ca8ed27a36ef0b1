// Package confidence scores how certain the automation is that an action is
// safe without human review, assesses the risk of proceeding unsupervised
// and learns from approval outcomes via per-node running averages.
package confidence
