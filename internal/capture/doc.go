// Package capture resolves the HLS manifest URL of a recording by clicking a
// play control and watching the page's network traffic.
//
// A Session is a resolve-once cell: request and response observers both offer
// candidate URLs, the first offer wins, and later offers are kept only for
// logging. Engine.Capture races that cell against a hard deadline and always
// detaches its observers before returning.
package capture
