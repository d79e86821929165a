// Package agent repeats update runs on a dedicated goroutine and hands the
// outcome counts of every finished cycle to a Handler, which decides whether
// another cycle follows.
//
// The Agent makes no decisions itself: the Handler is the single place where
// a supervising application reacts to a cycle, and the only way to keep the
// loop going is for it to return RunAgain. Cancelling the context given to
// New stops the loop before the next cycle and interrupts the running one.
package agent
