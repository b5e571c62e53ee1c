/*
Package statemachine holds the static transition graph of the app's views.

A Transition is (source view, action, accepted targets, handler kind). The
table is built once at startup by New, which rejects duplicate keys, dangling
or Unknown targets, empty target sets and unregistered handlers. After that
it is immutable and shared across requests without locking.

Sources may name a sub-state (Library/populated); Lookup prefers the exact
sub-state and falls back to the wildcard source. Mixing both for the same
action is rejected at construction.

Actions with more than one legitimate outcome, such as login landing on
Library, TwoFactor or Captcha, enumerate every accepted target explicitly.
*/
package statemachine
