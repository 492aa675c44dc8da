package http

import (
	"net/http"
)

// handleIndex renders the upload and chat page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>LogRAG</title>
    <style>
        body { font-family: system-ui, sans-serif; margin: 0; background: #f5f5f7; color: #222; }
        .container { max-width: 960px; margin: 0 auto; padding: 24px; }
        header h1 { margin: 0; }
        .subtitle { color: #666; margin-top: 4px; }
        section { background: #fff; border-radius: 8px; padding: 16px; margin-top: 16px; }
        #status { font-size: 14px; color: #444; }
        #status.error { color: #b00020; }
        progress { width: 100%; }
        table { border-collapse: collapse; width: 100%; font-size: 12px; overflow-x: auto; display: block; }
        th, td { border: 1px solid #ddd; padding: 4px 6px; text-align: left; white-space: nowrap; }
        #chat-container { max-height: 420px; overflow-y: auto; }
        .message { padding: 8px 12px; border-radius: 6px; margin: 6px 0; white-space: pre-wrap; }
        .user { background: #e3f2fd; }
        .assistant { background: #f1f1f1; }
        .error { color: #b00020; }
        details { font-size: 12px; color: #555; }
        form { display: flex; gap: 8px; margin-top: 8px; }
        input[type=text] { flex: 1; padding: 8px; }
    </style>
</head>
<body>
    <div class="container">
        <header>
            <h1>LogRAG</h1>
            <p class="subtitle">Ask questions about a CSV log file with a local model</p>
        </header>

        <section>
            <form id="upload-form" onsubmit="upload(event)">
                <input type="file" id="file-input" accept=".csv" required>
                <button type="submit">Upload</button>
            </form>
            <p id="status">No file uploaded.</p>
            <progress id="progress" value="0" max="1" hidden></progress>
            <div id="preview"></div>
        </section>

        <section>
            <div id="chat-container">
                <div id="messages"></div>
            </div>
            <form id="query-form" onsubmit="sendQuery(event)">
                <input type="text" id="query-input" placeholder="Ask about your logs..." autocomplete="off" required>
                <button type="submit" id="send-btn">Send</button>
            </form>
        </section>
    </div>

    <script>
        let polling = null;

        async function upload(e) {
            e.preventDefault();
            const input = document.getElementById('file-input');
            if (!input.files.length) return;
            const body = new FormData();
            body.append('file', input.files[0]);
            const resp = await fetch('/api/upload', { method: 'POST', body: body });
            const data = await resp.json();
            if (!resp.ok) {
                setStatus(data.error, true);
                return;
            }
            document.getElementById('messages').innerHTML = '';
            document.getElementById('preview').innerHTML = '';
            setStatus('Indexing ' + data.file + '...', false);
            if (polling) clearInterval(polling);
            polling = setInterval(pollStatus, 500);
        }

        async function pollStatus() {
            const resp = await fetch('/api/status');
            const s = await resp.json();
            const bar = document.getElementById('progress');
            if (s.state === 'ingesting') {
                bar.hidden = false;
                bar.value = s.progress;
                setStatus('Indexing ' + s.file + ': ' + s.rows_done + '/' + s.rows_total + ' rows', false);
                return;
            }
            clearInterval(polling);
            polling = null;
            bar.hidden = true;
            if (s.error) {
                setStatus(s.error, true);
                return;
            }
            if (!s.file) return;
            let msg = s.file + ' ready: ' + s.rows_indexed + ' rows indexed with ' + s.embedding_model;
            if (s.warnings) msg += ' (' + s.warnings + ' rows skipped)';
            setStatus(msg, false);
            loadPreview();
        }

        async function loadPreview() {
            const resp = await fetch('/api/preview');
            const p = await resp.json();
            if (!p.header) return;
            let html = '<table><tr>' + p.header.map(h => '<th>' + escapeHtml(h) + '</th>').join('') + '</tr>';
            for (const row of p.rows) {
                html += '<tr>' + row.map(c => '<td>' + escapeHtml(c) + '</td>').join('') + '</tr>';
            }
            html += '</table>';
            document.getElementById('preview').innerHTML = html;
        }

        function setStatus(text, isError) {
            const el = document.getElementById('status');
            el.textContent = text;
            el.className = isError ? 'error' : '';
        }

        function sendQuery(e) {
            e.preventDefault();
            const input = document.getElementById('query-input');
            const messages = document.getElementById('messages');
            const query = input.value.trim();
            if (!query) return;

            messages.innerHTML += '<div class="message user">' + escapeHtml(query) + '</div>';

            const responseId = 'response-' + Date.now();
            messages.innerHTML += '<div class="message assistant" id="' + responseId + '"><span class="cursor">▊</span></div>';
            input.value = '';

            const container = document.getElementById('chat-container');
            container.scrollTop = container.scrollHeight;

            const eventSource = new EventSource('/api/query/stream?q=' + encodeURIComponent(query));
            const responseEl = document.getElementById(responseId);
            let fullResponse = '';
            let sources = '';

            eventSource.onmessage = function(event) {
                const data = JSON.parse(event.data);
                if (data.rows) {
                    sources = '<details><summary>' + data.rows.length + ' rows used</summary>' +
                        data.rows.map(r => '[row ' + r.source_row + '] ' + r.score.toFixed(3) + ' ' + escapeHtml(r.text)).join('<br>') +
                        '</details>';
                    return;
                }
                if (data.error) {
                    eventSource.close();
                    responseEl.innerHTML = escapeHtml(fullResponse) + '<div class="error">' + escapeHtml(data.error) + '</div>';
                    return;
                }
                if (data.content) {
                    fullResponse += data.content;
                    responseEl.innerHTML = escapeHtml(fullResponse) + '<span class="cursor">▊</span>';
                    container.scrollTop = container.scrollHeight;
                }
                if (data.done) {
                    eventSource.close();
                    responseEl.innerHTML = escapeHtml(fullResponse || 'No response') + sources;
                }
            };

            // Non-2xx responses (no file, still indexing) end up here.
            eventSource.onerror = async function() {
                eventSource.close();
                if (fullResponse) {
                    responseEl.innerHTML = escapeHtml(fullResponse) + sources;
                    return;
                }
                const resp = await fetch('/api/query', {
                    method: 'POST',
                    headers: { 'Content-Type': 'application/json' },
                    body: JSON.stringify({ question: query })
                });
                const data = await resp.json();
                responseEl.innerHTML = resp.ok ? escapeHtml(data.answer) : '<span class="error">' + escapeHtml(data.error) + '</span>';
            };
        }

        function escapeHtml(text) {
            const div = document.createElement('div');
            div.textContent = text;
            return div.innerHTML;
        }

        pollStatus();
    </script>
</body>
</html>`
