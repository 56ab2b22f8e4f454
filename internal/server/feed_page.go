package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const feedPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Ledger Feed · Meterline</title>
    <link rel="icon" href="data:image/svg+xml,<svg xmlns='http://www.w3.org/2000/svg' viewBox='0 0 100 100'><text y='.9em' font-size='90'>◎</text></svg>">
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        :root {
            --bg: #09090b; --bg-subtle: #18181b; --border: #27272a;
            --text: #fafafa; --text-secondary: #a1a1aa; --text-tertiary: #52525b;
            --accent: #22c55e; --debit: #f87171;
        }
        body {
            font-family: -apple-system, 'Segoe UI', sans-serif;
            background: var(--bg); color: var(--text);
            min-height: 100vh; font-size: 14px;
            -webkit-font-smoothing: antialiased;
        }
        .mono { font-family: ui-monospace, 'SF Mono', monospace; }
        .container { max-width: 800px; margin: 0 auto; padding: 0 24px; }
        header {
            border-bottom: 1px solid var(--border); padding: 16px 0;
            position: sticky; top: 0; background: var(--bg); z-index: 100;
        }
        .header-inner { display: flex; justify-content: space-between; align-items: center; }
        .logo { display: flex; align-items: center; gap: 10px; text-decoration: none; color: var(--text); }
        .logo-mark { width: 24px; height: 24px; background: var(--accent); border-radius: 6px; }
        .logo-text { font-weight: 600; font-size: 15px; }

        .feed-header {
            padding: 48px 0 24px;
            display: flex; justify-content: space-between; align-items: flex-end;
            border-bottom: 1px solid var(--border);
        }
        .feed-title { font-size: 24px; font-weight: 600; margin-bottom: 4px; }
        .feed-desc { color: var(--text-secondary); }
        .live-badge {
            display: flex; align-items: center; gap: 8px;
            background: var(--bg-subtle); border: 1px solid var(--border);
            padding: 8px 14px; border-radius: 20px; font-size: 13px; color: var(--text-secondary);
        }
        .live-dot {
            width: 8px; height: 8px; background: var(--accent); border-radius: 50%;
            animation: pulse 2s ease-in-out infinite;
        }
        .live-dot.off { background: var(--text-tertiary); animation: none; }
        @keyframes pulse { 0%, 100% { opacity: 1; } 50% { opacity: 0.4; } }

        .entry {
            display: grid; grid-template-columns: 1fr auto;
            gap: 16px; padding: 20px 0; border-bottom: 1px solid var(--border);
            align-items: start;
        }
        .entry.new { animation: slideIn 0.3s ease-out; }
        @keyframes slideIn { from { opacity: 0; transform: translateY(-8px); } to { opacity: 1; transform: translateY(0); } }

        .entry-tenant {
            background: var(--bg-subtle); padding: 6px 12px; border-radius: 6px;
            font-weight: 500; font-size: 14px; display: inline-block;
        }
        .entry-desc { color: var(--text-secondary); font-size: 13px; margin-top: 8px; }
        .entry-kind {
            background: var(--bg); border: 1px solid var(--border);
            padding: 2px 8px; border-radius: 4px; font-size: 11px;
            text-transform: uppercase; color: var(--text-tertiary); margin-right: 8px;
        }
        .entry-right { text-align: right; }
        .entry-amount { font-size: 18px; font-weight: 600; color: var(--accent); }
        .entry-amount.debit { color: var(--debit); }
        .entry-time { font-size: 12px; color: var(--text-tertiary); margin-top: 4px; }

        .empty { text-align: center; padding: 80px 24px; color: var(--text-tertiary); }
    </style>
</head>
<body>
    <header><div class="container header-inner">
        <a href="/" class="logo"><div class="logo-mark"></div><span class="logo-text">Meterline</span></a>
    </div></header>
    <main class="container">
        <div class="feed-header">
            <div>
                <h1 class="feed-title">Ledger Feed</h1>
                <p class="feed-desc">Charges, top-ups, and refunds as they happen</p>
            </div>
            <div class="live-badge"><span class="live-dot" id="dot"></span><span id="conn">Connecting</span></div>
        </div>
        <div id="feed"><div class="empty">Waiting for ledger activity...</div></div>
    </main>
    <script>
        const feed = document.getElementById('feed');
        const dot = document.getElementById('dot');
        const conn = document.getElementById('conn');
        let entries = 0;

        function render(ev) {
            const e = ev.entry || {};
            const amount = e.amount || '0';
            const debit = amount.startsWith('-');
            const row = document.createElement('div');
            row.className = 'entry new';
            row.innerHTML =
                '<div>' +
                    '<span class="entry-tenant mono">' + (ev.tenantId || '?') + '</span>' +
                    '<div class="entry-desc"><span class="entry-kind">' + ev.type + '</span>' + (e.description || '') + '</div>' +
                '</div>' +
                '<div class="entry-right">' +
                    '<div class="entry-amount mono' + (debit ? ' debit' : '') + '">' + amount + '</div>' +
                    '<div class="entry-time">' + new Date(ev.timestamp).toLocaleTimeString() + '</div>' +
                '</div>';
            if (entries === 0) feed.innerHTML = '';
            feed.prepend(row);
            entries++;
            while (feed.children.length > 100) feed.removeChild(feed.lastChild);
        }

        function connect() {
            const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
            const ws = new WebSocket(proto + '//' + location.host + '/v1/feed');
            ws.onopen = () => {
                conn.textContent = 'Live';
                dot.classList.remove('off');
                ws.send(JSON.stringify({ allEvents: true }));
            };
            ws.onmessage = m => { try { render(JSON.parse(m.data)); } catch (_) {} };
            ws.onclose = () => {
                conn.textContent = 'Reconnecting';
                dot.classList.add('off');
                setTimeout(connect, 3000);
            };
        }
        connect();
    </script>
</body>
</html>`

func feedPageHandler(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, feedPageHTML)
}
