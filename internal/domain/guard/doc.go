/*
Package guard keeps at most one request per account touching that account's
device at any moment.

Each account owns a FIFO lane. Requests carrying the same fingerprint while
one is open join it and receive its result rather than queueing a second
interaction. A caller that waits too long fails with ConcurrencyTimeout; the
request it was waiting on still completes for everyone else.
*/
package guard
