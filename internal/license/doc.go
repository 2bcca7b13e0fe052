// Package license decides whether a license key grants access to a device.
//
// Keys are issued once in raw form and stored only as a salted SHA-256 hash,
// so validation scans every stored key and hashes the candidate under each
// row's salt. A matching key must be active and unexpired; the device is then
// bound to it, subject to the key's device quota, or refreshed if it is
// already bound. Expiry is applied lazily: a key whose expiry date has passed
// is moved to the expired status the first time a validation or heartbeat
// touches it.
//
// Every decision is written to the audit log on a best-effort basis. Audit
// failures are logged and counted but never change the outcome.
package license
