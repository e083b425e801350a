package onedrive

import "io"

// progressReader counts bytes pulled from r and reports whole-percent
// changes of sent*100/total. An unknown total reports nothing.
type progressReader struct {
	r      io.Reader
	total  int64
	sent   int64
	last   int64
	report func(pct int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.total > 0 {
		p.sent += int64(n)
		if pct := p.sent * 100 / p.total; pct != p.last {
			p.last = pct
			p.report(pct)
		}
	}
	return n, err
}

// progressWriter is the download-side counterpart, fed by io.Copy so bytes
// reach the destination incrementally as they arrive.
type progressWriter struct {
	w      io.Writer
	total  int64
	recv   int64
	last   int64
	report func(pct int64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if n > 0 && p.total > 0 {
		p.recv += int64(n)
		if pct := p.recv * 100 / p.total; pct != p.last {
			p.last = pct
			p.report(pct)
		}
	}
	return n, err
}
