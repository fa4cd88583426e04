// Package clock abstracts the ticker the job poller runs on so tests can drive
// poll cycles deterministically.
//
// Production code injects Real(). Tests inject Fake(), advance it explicitly,
// and inspect how many tickers are still live, which is how the tracker tests
// prove that a view's poll schedule is torn down exactly once.
package clock
