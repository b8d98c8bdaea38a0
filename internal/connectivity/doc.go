// Package connectivity tracks whether the remote store is believed reachable.
//
// A Monitor keeps a single online/offline bit, fed by periodic probes and by
// explicit Observe calls, and notifies subscribers exactly once per edge. On
// Linux it also listens to kernel uevents and rtnetlink link/address changes
// so a cable plug or Wi-Fi association re-probes immediately instead of
// waiting for the next interval. Being online is only a hint: the uploader's
// result is the authority on whether a delivery succeeded.
package connectivity
