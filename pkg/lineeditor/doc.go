// Package lineeditor reads operator input lines from a local interactive
// terminal.
//
// The editor puts the terminal into raw mode only while a read is in
// progress and decodes keystrokes with the vt100 package. It supports the
// usual editing keys, history recall through a shared history.Ring and tab
// completion against a Completer.
//
// # MULTI-LINE INPUT
//
// A buffer longer than the space left after the prompt wraps onto further
// physical rows. Every mutating handler (insert, backspace, delete, kill,
// history substitution, completion) redraws through vt100.Layout.Refresh,
// which computes the row of the cursor as (prompt + offset) / width and moves
// the physical cursor back to the prompt row before rewriting. Cursor-only
// movements use vt100.Layout.MoveTo with the same arithmetic.
//
// # USAGE
//
//	ed := lineeditor.New(os.Stdin, os.Stdout, lineeditor.Options{
//	    Prompt:    "chassis> ",
//	    History:   history.New(0),
//	    Completer: lineeditor.NewWordCompleter([]string{"console", "shell"}),
//	})
//	for {
//	    line, err := ed.ReadLine(ctx)
//	    if errors.Is(err, lineeditor.ErrCancelled) {
//	        continue
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    run(line)
//	}
//
// ReadKey gives callers such as the console relay raw access to decoded keys
// without line editing.
package lineeditor
