package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// feedPageHTML renders recent ledger rows and prepends live transfer events
// from /ws. Names come from users, so rows are built with textContent.
const feedPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Feed · FairShare</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        :root {
            --bg: #09090b; --bg-subtle: #18181b; --border: #27272a;
            --text: #fafafa; --text-secondary: #a1a1aa; --text-tertiary: #52525b;
            --accent: #22c55e; --warn: #f59e0b; --danger: #ef4444;
        }
        body {
            font-family: -apple-system, 'Segoe UI', sans-serif;
            background: var(--bg); color: var(--text);
            min-height: 100vh; font-size: 14px;
        }
        .mono { font-family: ui-monospace, monospace; }
        .container { max-width: 800px; margin: 0 auto; padding: 0 24px; }
        header { border-bottom: 1px solid var(--border); padding: 16px 0; }
        .logo { font-weight: 600; font-size: 15px; }
        .feed-header {
            padding: 40px 0 20px; border-bottom: 1px solid var(--border);
            display: flex; justify-content: space-between; align-items: flex-end;
        }
        .feed-title { font-size: 24px; font-weight: 600; margin-bottom: 4px; }
        .feed-desc { color: var(--text-secondary); }
        .live-badge {
            display: flex; align-items: center; gap: 8px; font-size: 13px;
            background: var(--bg-subtle); border: 1px solid var(--border);
            padding: 8px 14px; border-radius: 20px; color: var(--text-secondary);
        }
        .live-dot { width: 8px; height: 8px; border-radius: 50%; background: var(--text-tertiary); }
        .live-dot.on { background: var(--accent); }
        .tx {
            display: grid; grid-template-columns: 1fr auto; gap: 16px;
            padding: 18px 0; border-bottom: 1px solid var(--border);
        }
        .tx-parties { display: flex; gap: 10px; align-items: center; margin-bottom: 6px; }
        .tx-user { background: var(--bg-subtle); padding: 4px 10px; border-radius: 6px; font-weight: 500; }
        .tx-arrow { color: var(--text-tertiary); }
        .tx-reason { color: var(--text-secondary); font-size: 13px; }
        .tx-right { text-align: right; }
        .tx-amount { font-size: 18px; font-weight: 600; color: var(--accent); }
        .tx.medium .tx-amount { color: var(--warn); }
        .tx.high .tx-amount { color: var(--danger); }
        .tx-time { font-size: 12px; color: var(--text-tertiary); margin-top: 4px; }
        .empty { text-align: center; padding: 80px 24px; color: var(--text-tertiary); }
    </style>
</head>
<body>
    <header><div class="container"><span class="logo">FairShare</span></div></header>
    <main class="container">
        <div class="feed-header">
            <div>
                <h1 class="feed-title">Transfer Feed</h1>
                <p class="feed-desc">Viewer gifts as the risk engine sees them</p>
            </div>
            <div class="live-badge"><span class="live-dot" id="dot"></span> Live</div>
        </div>
        <div id="feed"><div class="empty">Loading transfers...</div></div>
    </main>
    <script>
        const feed = document.getElementById('feed');
        const usd = p => '$' + (p / 100).toFixed(2);

        function el(tag, cls, text) {
            const e = document.createElement(tag);
            if (cls) e.className = cls;
            if (text !== undefined) e.textContent = text;
            return e;
        }

        function row(tx) {
            const r = el('div', 'tx ' + tx.riskLevel);
            const main = el('div');
            const parties = el('div', 'tx-parties');
            parties.append(el('span', 'tx-user', tx.sender), el('span', 'tx-arrow', '→'), el('span', 'tx-user', tx.recipient));
            main.append(parties);
            if (tx.flagged) main.append(el('div', 'tx-reason', tx.reason));
            const right = el('div', 'tx-right');
            right.append(el('div', 'tx-amount mono', usd(tx.points)), el('div', 'tx-time', new Date(tx.timestamp).toLocaleString()));
            r.append(main, right);
            return r;
        }

        function prepend(tx) {
            const empty = feed.querySelector('.empty');
            if (empty) empty.remove();
            feed.prepend(row(tx));
            while (feed.children.length > 100) feed.lastChild.remove();
        }

        fetch('/v1/transfers?limit=30').then(r => r.json()).then(data => {
            feed.replaceChildren();
            if (!data.transactions || !data.transactions.length) {
                feed.append(el('div', 'empty', 'No transfers yet.'));
                return;
            }
            data.transactions.forEach(tx => feed.append(row(tx)));
        });

        function connect() {
            const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
            const dot = document.getElementById('dot');
            ws.onopen = () => dot.classList.add('on');
            ws.onmessage = m => { const ev = JSON.parse(m.data); if (ev.data) prepend(ev.data); };
            ws.onclose = () => { dot.classList.remove('on'); setTimeout(connect, 3000); };
        }
        connect();
    </script>
</body>
</html>`

func feedPageHandler(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, feedPageHTML)
}
